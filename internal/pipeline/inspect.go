package pipeline

import "github.com/MimeLyc/clipreel/internal/artifact"

// Inspection is the on-disk state of a working directory.
type Inspection struct {
	Dir     string
	State   artifact.State
	Foreign []*Error
}

// Inspect scans store without locking it. Files outside the naming
// convention are reported as UnrecognizedArtifact errors.
func Inspect(store *artifact.Store) (*Inspection, error) {
	state, foreign, err := store.ScanAll()
	if err != nil {
		return nil, WrapError(err, ErrWorkspace, "cannot read working directory")
	}

	ins := &Inspection{Dir: store.Dir(), State: state}
	for _, name := range foreign {
		_, perr := artifact.Parse(name)
		ins.Foreign = append(ins.Foreign, WrapError(perr, ErrUnrecognizedArtifact, "file is ignored").WithContext("name", name))
	}
	return ins, nil
}
