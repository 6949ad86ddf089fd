// Copyright 2026 go-polyhedral Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package codegen lowers a frozen schedule tree over a SCoP into kernel
// source text for a target profile. Generation is synchronous and
// deterministic: the same scop, tree and options produce byte-identical
// output.
package codegen

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ajroetker/go-polyhedral/poly"
	"github.com/ajroetker/go-polyhedral/poly/reduction"
	"github.com/ajroetker/go-polyhedral/poly/schedule"
	"github.com/ajroetker/go-polyhedral/poly/scop"
	"github.com/ajroetker/go-polyhedral/poly/target"
)

// ErrUnsupported reports a construct the generator cannot lower for the
// selected profile. It is distinguishable from invariant violations
// (schedule.ErrInvariant) and resolution failures (scop.ErrUnknownStatement)
// through errors.Is.
var ErrUnsupported = errors.New("unsupported by code generator")

// ArrayDecl describes one kernel parameter array: its name and the
// per-dimension sizes derived from the cells the region accesses.
type ArrayDecl struct {
	Name    string
	Extents []int64
}

// Program is a generated kernel artifact.
type Program struct {
	// Name is the emitted function name.
	Name string

	// Kernel is the complete kernel source text.
	Kernel string

	// Launch records the extents of every mapped resource.
	Launch LaunchConfig

	// Arrays lists the kernel's array parameters in declaration order.
	Arrays []ArrayDecl
}

// Generator lowers one (scop, schedule) pair. A Generator owns its iterator
// namespace and must not be shared across concurrent generations.
type Generator struct {
	scop *scop.Scop
	tree *schedule.Tree
	opts Options
}

// New creates a generator for the scop and schedule tree.
func New(s *scop.Scop, t *schedule.Tree, opts ...Option) *Generator {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Generator{scop: s, tree: t, opts: o}
}

// Generate lowers the schedule tree and returns the kernel artifact. The
// tree must be frozen. On error no partial artifact is returned.
func (g *Generator) Generate() (*Program, error) {
	if g.scop == nil || g.tree == nil {
		return nil, fmt.Errorf("codegen: %w: generator needs a scop and a schedule tree", schedule.ErrInvariant)
	}
	if !g.tree.Frozen() {
		return nil, fmt.Errorf("codegen: %w: schedule tree must be frozen before generation", schedule.ErrInvariant)
	}
	if err := g.resolveInstances(); err != nil {
		return nil, err
	}

	log := g.opts.Logger.With(map[string]any{"kernel": g.opts.KernelName})
	log.Debugf("lowering schedule for profile %s", g.opts.Profile.Name())

	arrays, err := g.collectArrays()
	if err != nil {
		return nil, err
	}

	run := &genRun{
		g:      g,
		log:    log,
		ns:     NewNamespace(),
		launch: LaunchConfig{},
		deps:   g.scop.Dependences().PairsList(),
		plans:  map[string]*reductionPlan{},
	}
	g.tree.Walk(g.tree.Root(), func(n *schedule.Node) bool {
		if n.Kind() == schedule.KindMapping && target.Resource(n.MappingResource()).IsThread() {
			run.threaded = true
			return false
		}
		return true
	})

	params := make([]string, 0, len(arrays))
	for _, a := range arrays {
		params = append(params, renderParam(a))
	}
	for _, line := range g.opts.Profile.Prologue(g.opts.KernelName, params) {
		run.em.writef("%s", line)
	}
	run.em.indent++

	scopParams := g.scop.Params()
	names := make([]string, 0, len(scopParams))
	for name := range scopParams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		run.em.writef("const int %s = %d;", name, scopParams[name])
	}

	if err := run.node(g.tree.Root()); err != nil {
		return nil, err
	}

	run.em.indent--
	for _, line := range g.opts.Profile.Epilogue() {
		run.em.writef("%s", line)
	}

	log.Infof("generated kernel: %d statements, %s", len(g.scop.Statements()), run.launch)
	return &Program{
		Name:   g.opts.KernelName,
		Kernel: run.em.String(),
		Launch: run.launch,
		Arrays: arrays,
	}, nil
}

// resolveInstances verifies every tuple the tree introduces names a known
// statement.
func (g *Generator) resolveInstances() error {
	var err error
	g.tree.Walk(g.tree.Root(), func(n *schedule.Node) bool {
		if n.Kind() != schedule.KindDomain && n.Kind() != schedule.KindExtension {
			return true
		}
		for _, tuple := range n.Domain().Tuples() {
			if _, ok := g.scop.Statement(tuple); !ok {
				err = fmt.Errorf("codegen: %s node: %w %q", n.Kind(), scop.ErrUnknownStatement, tuple)
				return false
			}
		}
		return true
	})
	return err
}

// collectArrays derives every array parameter's rank and per-dimension
// sizes from the cells the statements access.
func (g *Generator) collectArrays() ([]ArrayDecl, error) {
	type arrayInfo struct {
		rank int
		max  []int64
	}
	infos := map[string]*arrayInfo{}

	record := func(st *scop.Statement, a scop.Access) error {
		info, ok := infos[a.Array]
		if !ok {
			info = &arrayInfo{rank: len(a.Index), max: make([]int64, len(a.Index))}
			infos[a.Array] = info
		}
		if info.rank != len(a.Index) {
			return fmt.Errorf("codegen: %w: array %q accessed with ranks %d and %d",
				ErrUnsupported, a.Array, info.rank, len(a.Index))
		}
		for _, coords := range st.Domain.Points() {
			cell := a.Index.Eval(coords)
			for d, v := range cell {
				if v < 0 {
					return fmt.Errorf("codegen: %w: array %q indexed at negative %d by statement %q",
						ErrUnsupported, a.Array, v, st.ID)
				}
				if v+1 > info.max[d] {
					info.max[d] = v + 1
				}
			}
		}
		return nil
	}

	for _, st := range g.scop.Statements() {
		for _, a := range st.Reads {
			if err := record(st, a); err != nil {
				return nil, err
			}
		}
		for _, a := range st.Writes {
			if err := record(st, a); err != nil {
				return nil, err
			}
		}
	}

	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ArrayDecl, 0, len(names))
	for _, name := range names {
		info := infos[name]
		out = append(out, ArrayDecl{Name: name, Extents: info.max})
	}
	return out, nil
}

// renderParam renders one kernel parameter declaration. Arrays of rank two
// and up use pointer-to-array types so multi-dimensional subscripts stay
// valid C.
func renderParam(a ArrayDecl) string {
	if len(a.Extents) < 2 {
		return fmt.Sprintf("float* %s", a.Name)
	}
	var dims strings.Builder
	for _, e := range a.Extents[1:] {
		fmt.Fprintf(&dims, "[%d]", e)
	}
	return fmt.Sprintf("float (*%s)%s", a.Name, dims.String())
}

// lowerMode selects how a reduction update statement is emitted.
type lowerMode uint8

const (
	lowerDirect lowerMode = iota
	lowerAtomic
	lowerPrivate
)

func (m lowerMode) String() string {
	switch m {
	case lowerDirect:
		return "direct"
	case lowerAtomic:
		return "atomic"
	case lowerPrivate:
		return "private"
	}
	return fmt.Sprintf("lowerMode(%d)", uint8(m))
}

// prefixEntry is one emitted schedule dimension: its affine form, the
// iterator holding its value, the extent the emission covers, and the
// resource it binds when mapped.
type prefixEntry struct {
	expr poly.UnionAff
	iter string
	ext  poly.Extent
	res  target.Resource
}

func (e prefixEntry) mapped() bool { return e.res != "" }

// pendingMap is a mapping binding waiting for the next band on its path.
type pendingMap struct {
	res target.Resource
	dim int
}

// reductionPlan records the lowering decision for one reduction update
// statement, made where its reduction band is entered.
type reductionPlan struct {
	st    *scop.Statement
	strat *reduction.Strategy
	mode  lowerMode

	// acc is the private accumulator name (lowerPrivate only).
	acc string

	// declBand/declDim place the accumulator declaration before that band
	// dimension and the merge after it. leafScope instead wraps the
	// statement itself, for reductions whose dimensions are all mapped.
	declBand  *schedule.Node
	declDim   int
	leafScope bool
}

// genRun is the walker state for one generation.
type genRun struct {
	g   *Generator
	log Logger
	em  emitter
	ns  *Namespace

	launch LaunchConfig

	// entries is the symbolic schedule prefix built while descending bands,
	// outermost first.
	entries []prefixEntry

	// pending are mapping bindings not yet consumed by a band.
	pending []pendingMap

	// threaded records whether any mapping in the tree binds a thread-level
	// resource; deps caches the region's dependence pairs. These drive
	// barrier insertion between sequence children.
	threaded bool
	deps     []poly.Pair

	// plans holds reduction lowering decisions, keyed by statement ID and
	// scoped to the subtree of the band that made them.
	plans map[string]*reductionPlan
}

func (r *genRun) node(n *schedule.Node) error {
	switch n.Kind() {
	case schedule.KindDomain, schedule.KindFilter, schedule.KindExtension:
		return r.children(n)
	case schedule.KindBand:
		return r.band(n)
	case schedule.KindSequence:
		return r.sequence(n, true)
	case schedule.KindSet:
		return r.sequence(n, false)
	case schedule.KindMapping:
		return r.mapping(n)
	case schedule.KindContext:
		return r.context(n)
	}
	return fmt.Errorf("codegen: %w: unexpected node kind %s", schedule.ErrInvariant, n.Kind())
}

func (r *genRun) children(n *schedule.Node) error {
	if n.IsLeaf() {
		return r.leaf(n)
	}
	for _, c := range n.Children() {
		if err := r.node(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *genRun) mapping(n *schedule.Node) error {
	res := target.Resource(n.MappingResource())
	if !r.g.opts.Profile.Model().Supports(res) {
		return fmt.Errorf("codegen: %w: resource %q not in target model %q",
			ErrUnsupported, res, r.g.opts.Profile.Model().Name)
	}
	r.pending = append(r.pending, pendingMap{res: res, dim: n.MappingDim()})
	return r.children(n)
}

func (r *genRun) context(n *schedule.Node) error {
	params := n.ContextParams()
	declared := r.g.scop.Params()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if dv, ok := declared[name]; ok {
			if dv != params[name] {
				return fmt.Errorf("codegen: %w: context binds %s=%d but the region declares %s=%d",
					schedule.ErrInvariant, name, params[name], name, dv)
			}
			continue
		}
		r.em.writef("const int %s = %d;", name, params[name])
	}
	return r.children(n)
}

// sequence emits children in order. With barriers enabled (Sequence, not
// Set) a profile barrier precedes any child that a not-yet-synchronized
// earlier child has a dependence into, provided the kernel is
// thread-parallel at all: unmapped code executes redundantly on every
// in-scope thread, so a dependence crossing children races without a
// barrier even when only one side binds a resource.
func (r *genRun) sequence(n *schedule.Node, barriers bool) error {
	children := n.Children()
	emits := make([]bool, len(children))
	for i, c := range children {
		emits[i] = !r.g.tree.EffectiveDomain(c).IsEmpty()
	}

	pendingSnapshot := append([]pendingMap(nil), r.pending...)
	synced := 0
	for i, c := range children {
		if barriers && r.threaded && emits[i] && r.crossesUnsynced(children, emits, synced, i) {
			r.em.writef("%s", r.g.opts.Profile.Barrier())
			r.log.Debugf("barrier before sequence child %d", i)
			synced = i
		}
		r.pending = append([]pendingMap(nil), pendingSnapshot...)
		if err := r.node(c); err != nil {
			return err
		}
	}
	r.pending = nil
	return nil
}

// crossesUnsynced reports whether any child in [synced, i) has a dependence
// into child i.
func (r *genRun) crossesUnsynced(children []*schedule.Node, emits []bool, synced, i int) bool {
	domI := r.g.tree.EffectiveDomain(children[i])
	for j := synced; j < i; j++ {
		if !emits[j] {
			continue
		}
		domJ := r.g.tree.EffectiveDomain(children[j])
		for _, pr := range r.deps {
			if domJ.ContainsPoint(pr.Src) && domI.ContainsPoint(pr.Dst) {
				return true
			}
		}
	}
	return false
}

func (r *genRun) band(b *schedule.Node) error {
	dom := r.g.tree.EffectiveDomain(b)
	if dom.IsEmpty() {
		return nil
	}
	dims := b.BandDims()

	bound := map[int]target.Resource{}
	for _, pm := range r.pending {
		if prev, dup := bound[pm.dim]; dup {
			return fmt.Errorf("codegen: %w: band dimension %d bound to both %q and %q",
				schedule.ErrInvariant, pm.dim, prev, pm.res)
		}
		bound[pm.dim] = pm.res
	}
	r.pending = nil

	created, err := r.planReductions(b, dom, dims, bound)
	if err != nil {
		return err
	}
	defer func() {
		for _, id := range created {
			delete(r.plans, id)
		}
	}()

	return r.bandDims(b, dom, dims, bound, 0)
}

// bandDims emits band dimension i and recurses into i+1; past the last
// dimension it descends into the band's children.
func (r *genRun) bandDims(b *schedule.Node, dom *poly.UnionSet, dims []schedule.BandDim, bound map[int]target.Resource, i int) error {
	if i == len(dims) {
		return r.children(b)
	}

	ext, err := poly.ExtentOf(dims[i].Expr, dom)
	if err != nil {
		return fmt.Errorf("codegen: band dimension %d: %w: %v", i, schedule.ErrInvariant, err)
	}
	if !ext.Dense {
		return fmt.Errorf("codegen: %w: band dimension %d has a non-dense extent [%d,%d] with %d values",
			ErrUnsupported, i, ext.Min, ext.Max, ext.Count)
	}

	for _, p := range r.plansAt(b, i) {
		r.em.writef("float %s = %s;", p.acc, p.strat.Identity)
	}

	iter := r.ns.MakeLoopIterators(1, r.g.opts.IteratorPrefix)[0]
	res, isMapped := bound[i]
	switch {
	case isMapped:
		r.launch.grow(res, ext.Size())
		if expr, ok := r.g.opts.Profile.ResourceExpr(res); ok {
			if ext.Min == 0 {
				r.em.writef("const int %s = %s;", iter, expr)
			} else {
				r.em.writef("const int %s = %d + %s;", iter, ext.Min, expr)
			}
			r.em.writef("if (%s <= %d) {", iter, ext.Max)
		} else {
			if pragma, ok := r.g.opts.Profile.ParallelLoopPragma(); ok {
				r.em.writef("%s", pragma)
			}
			r.em.writef("for (int %s = %d; %s <= %d; %s++) {", iter, ext.Min, iter, ext.Max, iter)
		}
	default:
		r.em.writef("for (int %s = %d; %s <= %d; %s++) {", iter, ext.Min, iter, ext.Max, iter)
	}
	r.em.indent++
	r.entries = append(r.entries, prefixEntry{expr: dims[i].Expr, iter: iter, ext: ext, res: res})

	err = r.bandDims(b, dom, dims, bound, i+1)

	r.entries = r.entries[:len(r.entries)-1]
	r.em.indent--
	r.em.writef("}")
	if err != nil {
		return err
	}

	for _, p := range r.plansAt(b, i) {
		if err := r.emitMerge(p); err != nil {
			return err
		}
	}
	return nil
}

// plansAt returns the private-accumulator plans anchored at band dimension
// (b, i), ordered by statement ID.
func (r *genRun) plansAt(b *schedule.Node, i int) []*reductionPlan {
	var out []*reductionPlan
	for _, p := range r.plans {
		if p.mode == lowerPrivate && !p.leafScope && p.declBand == b && p.declDim == i {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].st.ID < out[b].st.ID })
	return out
}

// emitMerge folds a private accumulator into its target cell. The merge is
// atomic: distinct executors may share the cell. Merging the identity is a
// no-op, so the merge needs no guard even where the statement was filtered.
func (r *genRun) emitMerge(p *reductionPlan) error {
	exprs := recoverDimsLoose(p.st, r.entries)
	addr, err := renderAccess(p.st.Target(), exprs)
	if err != nil {
		return fmt.Errorf("codegen: merge for statement %q: %w", p.st.ID, err)
	}
	lines, ok := r.g.opts.Profile.Atomic(p.st.Body.Op, addr, p.acc)
	if !ok {
		return fmt.Errorf("codegen: %w: profile %q has no atomic %s",
			ErrUnsupported, r.g.opts.Profile.Name(), p.st.Body.Op)
	}
	for _, l := range lines {
		r.em.writef("%s", l)
	}
	return nil
}

func (r *genRun) leaf(n *schedule.Node) error {
	dom := r.g.tree.EffectiveDomain(n)
	for _, set := range dom.Sets() {
		if set.IsEmpty() {
			continue
		}
		st, _ := r.g.scop.Statement(set.Tuple())
		if err := r.emitStatement(n, st, set); err != nil {
			return err
		}
	}
	return nil
}

func (r *genRun) emitStatement(n *schedule.Node, st *scop.Statement, set *poly.Set) error {
	exprs, err := recoverDims(st, r.entries)
	if err != nil {
		return fmt.Errorf("codegen: statement %q: %w", st.ID, err)
	}
	guards, err := r.statementGuards(st, set)
	if err != nil {
		return err
	}

	targetExpr, err := renderAccess(st.Target(), exprs)
	if err != nil {
		return fmt.Errorf("codegen: statement %q: %w", st.ID, err)
	}
	rhs := renderExpr(st.Body.Expr, st.Dims, exprs)

	lines, err := r.statementLines(st, targetExpr, rhs)
	if err != nil {
		return err
	}

	if len(guards) > 0 {
		r.em.writef("if (%s) {", strings.Join(guards, " && "))
		r.em.indent++
	}
	for _, l := range lines {
		r.em.writef("%s", l)
	}
	if len(guards) > 0 {
		r.em.indent--
		r.em.writef("}")
	}
	return nil
}

// statementLines renders the body of one statement instance according to
// its lowering mode.
func (r *genRun) statementLines(st *scop.Statement, targetExpr, rhs string) ([]string, error) {
	plan := r.plans[st.ID]
	if plan == nil && r.g.scop.IsReductionUpdate(st.ID) && reduction.Verified(st.Body.Op) {
		// No reduction band was found on this path; decide here with the
		// full prefix. Private staging has nowhere to hoist to, so the
		// choice is direct or atomic.
		mode, err := r.leafFallbackMode(st)
		if err != nil {
			return nil, err
		}
		plan = &reductionPlan{st: st, strat: reduction.Lookup(st.Body.Op), mode: mode}
	}

	switch {
	case plan == nil || plan.mode == lowerDirect:
		return []string{renderUpdate(st.Body.Op, targetExpr, rhs)}, nil

	case plan.mode == lowerAtomic:
		lines, ok := r.g.opts.Profile.Atomic(st.Body.Op, targetExpr, rhs)
		if !ok {
			return nil, fmt.Errorf("codegen: %w: profile %q has no atomic %s for statement %q",
				ErrUnsupported, r.g.opts.Profile.Name(), st.Body.Op, st.ID)
		}
		return lines, nil

	case plan.leafScope:
		lines := []string{fmt.Sprintf("float %s = %s;", plan.acc, plan.strat.Identity)}
		lines = append(lines, renderUpdate(st.Body.Op, plan.acc, rhs))
		merge, ok := r.g.opts.Profile.Atomic(st.Body.Op, targetExpr, plan.acc)
		if !ok {
			return nil, fmt.Errorf("codegen: %w: profile %q has no atomic %s for statement %q",
				ErrUnsupported, r.g.opts.Profile.Name(), st.Body.Op, st.ID)
		}
		return append(lines, merge...), nil

	default:
		return []string{renderUpdate(st.Body.Op, plan.acc, rhs)}, nil
	}
}

// renderUpdate renders `target op= rhs`, falling back to the registered
// combining form for operators without a compound-assignment token.
func renderUpdate(op scop.UpdateOp, targetExpr, rhs string) string {
	if op == scop.OpNone {
		return fmt.Sprintf("%s = %s;", targetExpr, rhs)
	}
	if tok, ok := op.Token(); ok {
		return fmt.Sprintf("%s %s %s;", targetExpr, tok, rhs)
	}
	if strat := reduction.Lookup(op); strat != nil {
		return fmt.Sprintf("%s = %s;", targetExpr, fmt.Sprintf(strat.Combine, targetExpr, rhs))
	}
	return fmt.Sprintf("%s = %s;", targetExpr, rhs)
}

// statementGuards returns the conditions restricting the enclosing loops to
// the statement's own instances, one per schedule dimension narrower than
// its loop. It also rejects iteration spaces the guards cannot describe
// exactly.
func (r *genRun) statementGuards(st *scop.Statement, set *poly.Set) ([]string, error) {
	single := poly.NewUnionSet(set)
	var guards []string
	points := int64(1)
	for _, e := range r.entries {
		if _, ok := e.expr[st.ID]; !ok {
			continue
		}
		ext, err := poly.ExtentOf(e.expr, single)
		if err != nil {
			return nil, fmt.Errorf("codegen: statement %q: %w: %v", st.ID, schedule.ErrInvariant, err)
		}
		if !ext.Dense {
			return nil, fmt.Errorf("codegen: %w: statement %q is not contiguous in schedule dimension %s",
				ErrUnsupported, st.ID, e.iter)
		}
		points *= ext.Size()
		switch {
		case ext.Min == e.ext.Min && ext.Max == e.ext.Max:
			// Statement spans the whole loop.
		case ext.Min == ext.Max:
			guards = append(guards, fmt.Sprintf("%s == %d", e.iter, ext.Min))
		default:
			guards = append(guards, fmt.Sprintf("%d <= %s && %s <= %d", ext.Min, e.iter, e.iter, ext.Max))
		}
	}
	if points != int64(set.Size()) {
		return nil, fmt.Errorf("codegen: %w: statement %q occupies %d of the %d schedule points its bounds span",
			ErrUnsupported, st.ID, set.Size(), points)
	}
	return guards, nil
}

// leafFallbackMode decides direct versus atomic accumulation for a
// reduction statement that never crossed a reduction band.
func (r *genRun) leafFallbackMode(st *scop.Statement) (lowerMode, error) {
	rd := r.g.scop.ReductionDims(st.ID)
	domS := r.statementDomain(st)

	var lic poly.MultiUnionAff
	var exec poly.MultiUnionAff
	for _, e := range r.entries {
		aff, ok := e.expr[st.ID]
		if !ok {
			continue
		}
		if !touchesDims(aff, rd) {
			lic = append(lic, e.expr)
		}
		if e.mapped() {
			exec = append(exec, e.expr)
		}
	}
	if !reduction.IsSingleWithin(domS, lic, r.g.scop) {
		return lowerAtomic, nil
	}
	if len(exec) == 0 {
		return lowerDirect, nil
	}
	safe, err := r.g.scop.ConcurrentAccumulationSafe(st.ID, domS, exec)
	if err != nil {
		return 0, fmt.Errorf("codegen: %w", err)
	}
	if safe && r.g.scop.Reductions().IntersectDomain(domS).ApplyDomain(exec).IsInjective() {
		return lowerDirect, nil
	}
	return lowerAtomic, nil
}

func (r *genRun) statementDomain(st *scop.Statement) *poly.UnionSet {
	dom := r.g.scop.Domain()
	set := dom.Set(st.ID)
	if set == nil {
		return poly.NewUnionSet()
	}
	return poly.NewUnionSet(set)
}

// subDim is one band dimension found below a node, with the resource that
// will bind it when emission reaches it.
type subDim struct {
	expr poly.UnionAff
	res  target.Resource
}

// subDims collects every band dimension in the subtrees below the given
// children, threading pending mappings the way emission does.
func subDims(children []*schedule.Node) []subDim {
	var out []subDim
	var rec func(n *schedule.Node, pend []pendingMap)
	rec = func(n *schedule.Node, pend []pendingMap) {
		switch n.Kind() {
		case schedule.KindMapping:
			pend = append(append([]pendingMap(nil), pend...),
				pendingMap{res: target.Resource(n.MappingResource()), dim: n.MappingDim()})
		case schedule.KindBand:
			bound := map[int]target.Resource{}
			for _, pm := range pend {
				bound[pm.dim] = pm.res
			}
			for i, d := range n.BandDims() {
				out = append(out, subDim{expr: d.Expr, res: bound[i]})
			}
			pend = nil
		}
		for _, c := range n.Children() {
			rec(c, pend)
		}
	}
	for _, c := range children {
		rec(c, nil)
	}
	return out
}

// planReductions decides, for every reduction update statement whose
// reduction loops start at this band, how its accumulation is lowered. The
// returned IDs scope the plans to this band's subtree.
func (r *genRun) planReductions(b *schedule.Node, dom *poly.UnionSet, dims []schedule.BandDim, bound map[int]target.Resource) ([]string, error) {
	var created []string
	below := subDims(b.Children())

	for _, tuple := range dom.Tuples() {
		st, _ := r.g.scop.Statement(tuple)
		if _, exists := r.plans[st.ID]; exists {
			continue
		}
		if !r.g.scop.IsReductionUpdate(st.ID) || !reduction.Verified(st.Body.Op) {
			continue
		}
		rd := r.g.scop.ReductionDims(st.ID)

		carries := false
		for _, d := range dims {
			if aff, ok := d.Expr[st.ID]; ok && pureDims(aff, rd) {
				carries = true
				break
			}
		}
		if !carries {
			continue
		}

		plan, err := r.decideReduction(b, st, rd, dims, bound, below)
		if err != nil {
			return created, err
		}
		r.plans[st.ID] = plan
		created = append(created, st.ID)
		r.log.Debugf("reduction %q lowered as %s", st.ID, plan.mode)
	}
	return created, nil
}

func (r *genRun) decideReduction(b *schedule.Node, st *scop.Statement, rd []int, dims []schedule.BandDim, bound map[int]target.Resource, below []subDim) (*reductionPlan, error) {
	plan := &reductionPlan{st: st, strat: reduction.Lookup(st.Body.Op)}
	domS := r.statementDomain(st)

	// Licensing: one accumulator cell per point of the non-reduction
	// schedule dimensions in scope here.
	var lic poly.MultiUnionAff
	for _, e := range r.entries {
		if aff, ok := e.expr[st.ID]; ok && !touchesDims(aff, rd) {
			lic = append(lic, e.expr)
		}
	}
	for _, d := range dims {
		if aff, ok := d.Expr[st.ID]; ok && !touchesDims(aff, rd) {
			lic = append(lic, d.Expr)
		}
	}
	if !reduction.IsSingleWithin(domS, lic, r.g.scop) {
		plan.mode = lowerAtomic
		return plan, r.checkAtomic(plan)
	}

	// Executors: every mapped schedule dimension in scope or in the
	// subtree, on any target.
	var exec poly.MultiUnionAff
	for _, e := range r.entries {
		if _, ok := e.expr[st.ID]; ok && e.mapped() {
			exec = append(exec, e.expr)
		}
	}
	for i, d := range dims {
		if _, ok := d.Expr[st.ID]; ok && bound[i] != "" {
			exec = append(exec, d.Expr)
		}
	}
	for _, sd := range below {
		if _, ok := sd.expr[st.ID]; ok && sd.res != "" {
			exec = append(exec, sd.expr)
		}
	}

	if len(exec) == 0 {
		plan.mode = lowerDirect
		return plan, nil
	}
	safe, err := r.g.scop.ConcurrentAccumulationSafe(st.ID, domS, exec)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	if safe && r.g.scop.Reductions().IntersectDomain(domS).ApplyDomain(exec).IsInjective() {
		plan.mode = lowerDirect
		return plan, nil
	}

	// Private staging: the accumulator cell must not move with the
	// reduction dimensions, and the declaration needs a loop to precede.
	acc, _ := r.g.scop.Accumulator(st.ID)
	for _, aff := range acc.Index {
		if touchesDims(aff, rd) {
			plan.mode = lowerAtomic
			return plan, r.checkAtomic(plan)
		}
	}
	for _, sd := range below {
		if aff, ok := sd.expr[st.ID]; ok && sd.res == "" && pureDims(aff, rd) {
			// A reduction loop deeper than this band has no hoist point
			// here.
			plan.mode = lowerAtomic
			return plan, r.checkAtomic(plan)
		}
	}

	declDim := -1
	for i, d := range dims {
		aff, ok := d.Expr[st.ID]
		if ok && bound[i] == "" && pureDims(aff, rd) {
			declDim = i
			break
		}
	}
	if declDim >= 0 {
		// The merge renders the accumulator cell outside the reduction
		// loop; its dimensions must come from entries still in scope there.
		scope := append([]prefixEntry(nil), r.entries...)
		for i := 0; i < declDim; i++ {
			scope = append(scope, prefixEntry{expr: dims[i].Expr, iter: "_"})
		}
		if !accessRecoverable(acc, st, scope) {
			plan.mode = lowerAtomic
			return plan, r.checkAtomic(plan)
		}
		plan.declBand = b
		plan.declDim = declDim
	} else {
		plan.leafScope = true
	}
	plan.mode = lowerPrivate
	plan.acc = r.ns.Fresh("r")
	return plan, r.checkAtomic(plan)
}

// checkAtomic verifies the profile can merge the plan's operator.
func (r *genRun) checkAtomic(plan *reductionPlan) error {
	if _, ok := r.g.opts.Profile.Atomic(plan.st.Body.Op, "x", "v"); !ok {
		return fmt.Errorf("codegen: %w: profile %q has no atomic %s for statement %q",
			ErrUnsupported, r.g.opts.Profile.Name(), plan.st.Body.Op, plan.st.ID)
	}
	return nil
}

// touchesDims reports whether the form has a nonzero coefficient on any of
// the given dimensions.
func touchesDims(a poly.Aff, dims []int) bool {
	for _, d := range dims {
		if d < len(a.Coeffs) && a.Coeffs[d] != 0 {
			return true
		}
	}
	return false
}

// pureDims reports whether the form varies with the given dimensions and no
// others.
func pureDims(a poly.Aff, dims []int) bool {
	any := false
	for i, c := range a.Coeffs {
		if c == 0 {
			continue
		}
		member := false
		for _, d := range dims {
			if d == i {
				member = true
				break
			}
		}
		if !member {
			return false
		}
		any = true
	}
	return any
}

// recoverDims inverts the active prefix into one C expression per instance
// dimension of the statement.
func recoverDims(st *scop.Statement, entries []prefixEntry) ([]string, error) {
	out := recoverDimsLoose(st, entries)
	for d, expr := range out {
		if expr == "" {
			return nil, fmt.Errorf("%w: dimension %q is not recoverable from the schedule prefix",
				schedule.ErrInvariant, st.Dims[d])
		}
	}
	return out, nil
}

// recoverDimsLoose is recoverDims leaving unrecoverable dimensions empty.
func recoverDimsLoose(st *scop.Statement, entries []prefixEntry) []string {
	out := make([]string, st.Rank())
	for _, e := range entries {
		aff, ok := e.expr[st.ID]
		if !ok {
			continue
		}
		d, coeff, ok := aff.SingleDim()
		if !ok || d >= len(out) || out[d] != "" {
			continue
		}
		out[d] = invertAff(e.iter, coeff, aff.Const)
	}
	return out
}

// accessRecoverable reports whether every dimension the access depends on
// is recoverable from the given entries.
func accessRecoverable(a scop.Access, st *scop.Statement, entries []prefixEntry) bool {
	got := recoverDimsLoose(st, entries)
	for _, aff := range a.Index {
		for d, c := range aff.Coeffs {
			if c != 0 && got[d] == "" {
				return false
			}
		}
	}
	return true
}

// invertAff renders the instance dimension value d from iter == coeff*d +
// konst. Iterator values lie on the lattice, so the division is exact.
func invertAff(iter string, coeff, konst int64) string {
	expr := iter
	if konst > 0 {
		expr = fmt.Sprintf("%s - %d", iter, konst)
	} else if konst < 0 {
		expr = fmt.Sprintf("%s + %d", iter, -konst)
	}
	if coeff != 1 {
		return fmt.Sprintf("((%s) / %d)", expr, coeff)
	}
	if expr != iter {
		return fmt.Sprintf("(%s)", expr)
	}
	return expr
}

// renderAccess renders an array access with the given per-dimension
// substitutions. A scalar access renders as cell zero.
func renderAccess(a scop.Access, dimExprs []string) (string, error) {
	if len(a.Index) == 0 {
		return fmt.Sprintf("%s[0]", a.Array), nil
	}
	var b strings.Builder
	b.WriteString(a.Array)
	for _, aff := range a.Index {
		idx, err := renderAff(aff, dimExprs)
		if err != nil {
			return "", fmt.Errorf("access to %q: %w", a.Array, err)
		}
		b.WriteByte('[')
		b.WriteString(idx)
		b.WriteByte(']')
	}
	return b.String(), nil
}

// renderAff renders an affine form over substituted dimension expressions.
func renderAff(a poly.Aff, dimExprs []string) (string, error) {
	var b strings.Builder
	for d, c := range a.Coeffs {
		if c == 0 {
			continue
		}
		if d >= len(dimExprs) || dimExprs[d] == "" {
			return "", fmt.Errorf("%w: dimension %d is not in scope", schedule.ErrInvariant, d)
		}
		switch {
		case b.Len() == 0 && c == 1:
			b.WriteString(dimExprs[d])
		case b.Len() == 0 && c == -1:
			b.WriteString("-")
			b.WriteString(dimExprs[d])
		case b.Len() == 0:
			fmt.Fprintf(&b, "%d * %s", c, dimExprs[d])
		case c == 1:
			fmt.Fprintf(&b, " + %s", dimExprs[d])
		case c == -1:
			fmt.Fprintf(&b, " - %s", dimExprs[d])
		case c > 0:
			fmt.Fprintf(&b, " + %d * %s", c, dimExprs[d])
		default:
			fmt.Fprintf(&b, " - %d * %s", -c, dimExprs[d])
		}
	}
	switch {
	case b.Len() == 0:
		fmt.Fprintf(&b, "%d", a.Const)
	case a.Const > 0:
		fmt.Fprintf(&b, " + %d", a.Const)
	case a.Const < 0:
		fmt.Fprintf(&b, " - %d", -a.Const)
	}
	return b.String(), nil
}

// renderExpr rewrites the opaque body text, substituting the recovered
// iterator expression for every occurrence of a dimension name.
func renderExpr(expr string, dims []string, dimExprs []string) string {
	subst := make(map[string]string, len(dims))
	for i, d := range dims {
		if i < len(dimExprs) && dimExprs[i] != "" && dimExprs[i] != d {
			subst[d] = dimExprs[i]
		}
	}
	if len(subst) == 0 {
		return expr
	}

	var b strings.Builder
	b.Grow(len(expr))
	for i := 0; i < len(expr); {
		c := expr[i]
		if !isIdentStart(c) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(expr) && isIdentPart(expr[j]) {
			j++
		}
		word := expr[i:j]
		if rep, ok := subst[word]; ok {
			b.WriteString(rep)
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
