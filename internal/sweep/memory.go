package sweep

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// rssSampler reads the harness process's resident set size. A run records
// the delta between the sample taken before the round and the one taken
// at teardown, failure included.
type rssSampler struct {
	proc *process.Process
}

func newRSSSampler() (*rssSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &rssSampler{proc: proc}, nil
}

// rssMB returns the current resident set size in megabytes, or 0 when
// the read fails. Memory is diagnostic; a failed sample must not fail
// the run.
func (s *rssSampler) rssMB() float64 {
	if s == nil || s.proc == nil {
		return 0
	}
	info, err := s.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}
