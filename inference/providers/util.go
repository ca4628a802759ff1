package providers

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibraryEnv overrides the default shared library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	environmentOnce sync.Once
	environmentErr  error
)

// GetSharedLibPath returns the path to the ONNX Runtime shared library for the current platform.
//
// Arguments:
//   - override: An explicit path. When empty, the environment variable and then the platform
//     default are used.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(SharedLibraryEnv); env != "" {
		return env
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// InitializeEnvironment loads the native library and prepares the runtime. It runs once per process;
// later calls return the first outcome.
//
// Arguments:
//   - libPath: The shared library path, see GetSharedLibPath.
//
// Returns:
//   - error: An error if the runtime cannot be initialized.
func InitializeEnvironment(libPath string) error {
	environmentOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(GetSharedLibPath(libPath))
		if err := ort.InitializeEnvironment(); err != nil {
			environmentErr = fmt.Errorf("error initializing ORT environment: %w", err)
		}
	})
	return environmentErr
}

// ProbeCUDA checks that a CUDA execution provider can be attached for the given device.
//
// Arguments:
//   - libPath: The shared library path.
//   - deviceID: The accelerator ordinal.
//
// Returns:
//   - error: An error if the runtime or the accelerator is unavailable.
func ProbeCUDA(libPath string, deviceID int) error {
	if err := InitializeEnvironment(libPath); err != nil {
		return err
	}
	opts, err := NewSessionOptions(CUDAOptions{DeviceID: deviceID})
	if err != nil {
		return err
	}
	return opts.Destroy()
}
