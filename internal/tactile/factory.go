package tactile

import (
	"fmt"

	"modelsynth/internal/config"
)

// NewFromConfig builds the Executor selected by cfg.Execution.Backend.
func NewFromConfig(cfg *config.Config) (*Executor, error) {
	ex := cfg.Execution
	tc := DefaultToolchain()
	if ex.ClangPath != "" {
		tc.Clang = ex.ClangPath
	}
	if ex.KLEEPath != "" {
		tc.KLEE = ex.KLEEPath
	}
	if ex.KTestToolPath != "" {
		tc.KTestTool = ex.KTestToolPath
	}
	opts := []Option{
		WithToolchain(tc),
		WithDefaultTimeout(cfg.GetExecutionTimeout()),
	}

	switch ex.Backend {
	case "docker", "":
		return NewDockerExecutor(DockerConfig{Image: ex.Image, ContainerName: ex.ContainerName}, opts...)
	case "direct":
		return NewDirectExecutor(ex.WorkDir, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported execution backend: %s", ex.Backend)
	}
}
