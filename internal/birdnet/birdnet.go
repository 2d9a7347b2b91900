// birdnet.go BirdNET model specific code
package birdnet

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/cpuspec"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// DefaultModelName is the expected filesystem basename for the main
// BirdNET analysis model file, used when searching standard paths.
const DefaultModelName = "BirdNET_GLOBAL_6K_V2.4_Model_FP32.tflite"

// Model version string reported in logs and detections.
var modelVersion = "BirdNET GLOBAL 6K V2.4 FP32"

// BirdNET wraps the TensorFlow Lite interpreter together with the loaded
// species labels. All inference goes through one interpreter guarded by
// a mutex.
type BirdNET struct {
	AnalysisInterpreter *tflite.Interpreter
	Settings            *conf.Settings
	Labels              []string
	mu                  sync.Mutex

	// Pre-allocated buffers reused across Predict calls to reduce
	// allocations on the hot path.
	resultsBuffer    []Result
	confidenceBuffer []float32
}

func getLogger() *slog.Logger {
	logger := logging.ForService("birdnet")
	if logger == nil {
		logger = slog.Default()
	}
	return logger
}

// NewBirdNET initializes a new BirdNET instance with given settings.
func NewBirdNET(settings *conf.Settings) (*BirdNET, error) {
	bn := &BirdNET{
		Settings: settings,
	}

	if err := bn.initializeModel(); err != nil {
		return nil, errors.New(fmt.Errorf("BirdNET: failed to initialize analysis model: %w", err)).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.BirdNET.ModelPath).
			Build()
	}

	// Normalize and validate locale setting.
	normalizedLocale, err := conf.NormalizeLocale(strings.ToLower(settings.BirdNET.Locale))
	if err != nil {
		getLogger().Warn("unsupported locale, falling back",
			"requested", settings.BirdNET.Locale,
			"fallback", normalizedLocale)
	}
	settings.BirdNET.Locale = normalizedLocale

	if err := bn.loadLabels(); err != nil {
		return nil, errors.New(fmt.Errorf("BirdNET: failed to load species labels: %w", err)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", settings.BirdNET.LabelPath).
			Context("locale", settings.BirdNET.Locale).
			Build()
	}

	if err := bn.validateModelAndLabels(); err != nil {
		return nil, errors.New(fmt.Errorf("BirdNET: model validation failed: %w", err)).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.BirdNET.ModelPath).
			Build()
	}

	return bn, nil
}

// initializeModel loads and initializes the primary BirdNET model.
func (bn *BirdNET) initializeModel() error {
	start := time.Now()

	modelData, err := bn.loadModelData()
	if err != nil {
		return errors.New(err).
			Component("birdnet").
			Category(errors.CategoryModelLoad).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return errors.Newf("cannot load TensorFlow Lite model").
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Context("model_size_mb", len(modelData)/1024/1024).
			Context("use_xnnpack", bn.Settings.BirdNET.UseXNNPACK).
			Timing("model-init", time.Since(start)).
			Build()
	}

	// Determine the number of threads for the interpreter based on settings and system capacity.
	threads := bn.determineThreadCount(bn.Settings.BirdNET.Threads)

	// Configure interpreter options.
	options := tflite.NewInterpreterOptions()

	// Try to use XNNPACK delegate if enabled in settings
	log := getLogger()
	if bn.Settings.BirdNET.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count, safe conversion
		if delegate == nil {
			log.Warn("Failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {
		getLogger().Error("TFLite error", "message", msg)
	}, nil)

	// Create and allocate the TensorFlow Lite interpreter.
	bn.AnalysisInterpreter = tflite.NewInterpreter(model, options)
	if bn.AnalysisInterpreter == nil {
		return fmt.Errorf("cannot create interpreter")
	}
	if status := bn.AnalysisInterpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("tensor allocation failed")
	}

	// The model data is no longer needed once TFLite has made its own
	// internal copy.
	runtime.GC()

	if bn.Settings.BirdNET.ModelPath != "" {
		modelVersion = filepath.Base(bn.Settings.BirdNET.ModelPath)
	}

	spec := cpuspec.GetCPUSpec()
	if bn.Settings.BirdNET.Threads == 0 && spec.PerformanceCores > 0 {
		log.Info("BirdNET model initialized",
			"model", modelVersion,
			"threads", threads,
			"performance_cores", spec.PerformanceCores,
			"total_cpus", runtime.NumCPU())
	} else {
		log.Info("BirdNET model initialized",
			"model", modelVersion,
			"threads", threads,
			"total_cpus", runtime.NumCPU())
	}
	return nil
}

// loadModelData reads the model file from the configured path or, when
// no path is set, from the first standard location that exists.
func (bn *BirdNET) loadModelData() ([]byte, error) {
	modelPath := bn.Settings.BirdNET.ModelPath
	if modelPath != "" {
		expanded, err := expandPath(modelPath)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded) //nolint:gosec // G304: modelPath is from application settings
		if err != nil {
			return nil, errors.New(err).
				Component("birdnet").
				Category(errors.CategoryFileIO).
				Context("path", expanded).
				Build()
		}
		return data, nil
	}

	data, path, err := loadFromStandardPaths(bn.Settings, DefaultModelName)
	if err != nil {
		return nil, err
	}
	getLogger().Info("Loaded model from standard path", "path", path)
	return data, nil
}

// standardDataPaths lists the locations searched for model and label
// files when no explicit path is configured, in priority order.
func standardDataPaths(settings *conf.Settings, name string) []string {
	paths := []string{}
	if settings.Main.DataRoot != "" {
		paths = append(paths, filepath.Join(settings.Main.DataRoot, "model", name))
	}

	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			paths = append(paths, filepath.Join(programData, "BirdNET-Pi", "model", name))
		}
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			paths = append(paths, filepath.Join(xdgData, "birdnet-pi", "model", name))
		} else if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".local", "share", "birdnet-pi", "model", name))
		}
		paths = append(paths,
			filepath.Join("/", "usr", "share", "birdnet-pi", "model", name),
			filepath.Join("/", "opt", "birdnet-pi", "model", name),
		)
	}
	return paths
}

// loadFromStandardPaths tries each standard location in turn and returns
// the first file found.
func loadFromStandardPaths(settings *conf.Settings, name string) (data []byte, path string, err error) {
	candidates := standardDataPaths(settings, name)
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate) //nolint:gosec // G304: candidate paths are application defined
		if err == nil {
			return data, candidate, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", errors.New(err).
				Component("birdnet").
				Category(errors.CategoryFileIO).
				Context("path", candidate).
				Build()
		}
	}
	return nil, "", errors.Newf("%s not found in any standard location: %s", name, strings.Join(candidates, ", ")).
		Component("birdnet").
		Category(errors.CategoryModelLoad).
		Context("searched_paths", len(candidates)).
		Build()
}

// expandPath expands environment variables and a leading ~ in a path.
func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New(err).
				Component("birdnet").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

// loadLabels reads species labels from the configured label file or from
// the locale-specific file in the standard locations.
func (bn *BirdNET) loadLabels() error {
	bn.Labels = []string{}

	labelPath := bn.Settings.BirdNET.LabelPath
	if labelPath == "" {
		filename, err := conf.GetLabelFilename(conf.DefaultModelVersion, bn.Settings.BirdNET.Locale)
		if err != nil {
			return err
		}
		data, path, err := loadFromStandardPaths(bn.Settings, filepath.Join("labels", filepath.FromSlash(filename)))
		if err != nil {
			return err
		}
		getLogger().Info("Loaded labels from standard path", "path", path, "locale", bn.Settings.BirdNET.Locale)
		return bn.parseLabelData(bytes.NewReader(data))
	}

	expanded, err := expandPath(labelPath)
	if err != nil {
		return err
	}
	file, err := os.Open(expanded) //nolint:gosec // G304: labelPath is from application settings
	if err != nil {
		return errors.New(err).
			Component("birdnet").
			Category(errors.CategoryFileIO).
			Context("label_path", expanded).
			Build()
	}
	defer func() {
		if err := file.Close(); err != nil {
			getLogger().Warn("Failed to close label file", "error", err, "path", expanded)
		}
	}()

	return bn.parseLabelData(file)
}

// parseLabelData reads labels line by line, skipping blanks.
func (bn *BirdNET) parseLabelData(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			bn.Labels = append(bn.Labels, line)
		}
	}
	return scanner.Err()
}

// validateModelAndLabels checks that the number of labels matches the
// model output size and allocates the reusable result buffers.
func (bn *BirdNET) validateModelAndLabels() error {
	outputTensor := bn.AnalysisInterpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return fmt.Errorf("cannot get output tensor")
	}

	modelOutputSize := outputTensor.Dim(outputTensor.NumDims() - 1)
	if len(bn.Labels) != modelOutputSize {
		return errors.Newf("label count mismatch: model expects %d, label file has %d", modelOutputSize, len(bn.Labels)).
			Component("birdnet").
			Category(errors.CategoryValidation).
			Context("model_output_size", modelOutputSize).
			Context("label_count", len(bn.Labels)).
			Build()
	}

	bn.resultsBuffer = make([]Result, modelOutputSize)
	bn.confidenceBuffer = make([]float32, modelOutputSize)

	getLogger().Debug("Model validation successful",
		"output_size", modelOutputSize,
		"label_count", len(bn.Labels))
	return nil
}

// determineThreadCount calculates the appropriate number of threads to use based on settings and system capabilities.
func (bn *BirdNET) determineThreadCount(configuredThreads int) int {
	systemCpuCount := runtime.NumCPU()

	// If threads are configured to 0, try to get optimal count from cpuspec
	if configuredThreads == 0 {
		spec := cpuspec.GetCPUSpec()
		optimalThreads := spec.GetOptimalThreadCount()
		if optimalThreads > 0 {
			return min(optimalThreads, systemCpuCount)
		}

		// If cpuspec doesn't know the CPU, use all available cores
		return systemCpuCount
	}

	// If threads are configured but exceed system CPU count, limit to system CPU count
	if configuredThreads > systemCpuCount {
		return systemCpuCount
	}

	return configuredThreads
}

// Delete releases resources used by the TensorFlow Lite interpreter.
func (bn *BirdNET) Delete() {
	if bn.AnalysisInterpreter != nil {
		bn.AnalysisInterpreter.Delete()
	}
}
