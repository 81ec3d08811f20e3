package artifact

import "sort"

// State is the set of artifacts present in a working directory at the
// moment it was scanned.
type State struct {
	stages map[int][3]bool
}

func NewState(artifacts ...Artifact) State {
	s := State{stages: make(map[int][3]bool)}
	for _, a := range artifacts {
		s.add(a)
	}
	return s
}

func (s State) add(a Artifact) {
	set := s.stages[a.Index]
	set[a.Stage] = true
	s.stages[a.Index] = set
}

// Has reports whether the exact (index, stage) artifact exists.
func (s State) Has(index int, stage Stage) bool {
	if !stage.valid() {
		return false
	}
	return s.stages[index][stage]
}

// Reached reports whether index has an artifact at stage or at any stage
// that supersedes it.
func (s State) Reached(index int, stage Stage) bool {
	for st := stage; st <= Annotated; st++ {
		if s.Has(index, st) {
			return true
		}
	}
	return false
}

// Input returns the artifact to feed into annotation for index: Resized
// when present, otherwise Raw.
func (s State) Input(index int) (Artifact, bool) {
	for _, st := range []Stage{Resized, Raw} {
		if s.Has(index, st) {
			return Artifact{Index: index, Stage: st}, true
		}
	}
	return Artifact{}, false
}

// Indices returns, in ascending order, every index holding an artifact at
// exactly stage.
func (s State) Indices(stage Stage) []int {
	ret := make([]int, 0, len(s.stages))
	for idx := range s.stages {
		if s.Has(idx, stage) {
			ret = append(ret, idx)
		}
	}
	sort.Ints(ret)
	return ret
}

// All lists every artifact ordered by index then stage.
func (s State) All() []Artifact {
	ret := make([]Artifact, 0, len(s.stages))
	idx := make([]int, 0, len(s.stages))
	for i := range s.stages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		for st := Raw; st <= Annotated; st++ {
			if s.Has(i, st) {
				ret = append(ret, Artifact{Index: i, Stage: st})
			}
		}
	}
	return ret
}

func (s State) Len() int {
	return len(s.All())
}
