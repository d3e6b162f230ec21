// Package tflite runs the disease classifier in-process with TensorFlow Lite.
package tflite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/kiranshivaraju/agrismart/internal/disease"
	"github.com/tphakala/go-tflite"
)

var _ disease.Model = (*Model)(nil)

// Model wraps a TensorFlow Lite interpreter. The interpreter is not
// reentrant, so Predict calls are serialized.
type Model struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
}

// Load reads the .tflite file at path and allocates its tensors. threads <= 0
// uses one thread per CPU.
func Load(path string, threads int) (*Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", disease.ErrModelUnavailable, err)
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("%w: cannot load model from %s", disease.ErrModelUnavailable, path)
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		slog.Warn("tflite", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: cannot create interpreter", disease.ErrModelUnavailable)
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: tensor allocation failed", disease.ErrModelUnavailable)
	}

	return &Model{model: model, options: options, interpreter: interpreter}, nil
}

func (m *Model) Predict(_ context.Context, input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, fmt.Errorf("%w: interpreter closed", disease.ErrModelUnavailable)
	}

	in := m.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	buf := in.Float32s()
	if len(buf) != len(input) {
		return nil, fmt.Errorf("input tensor holds %d values, got %d", len(buf), len(input))
	}
	copy(buf, input)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed")
	}

	out := m.interpreter.GetOutputTensor(0)
	if out == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	scores := make([]float32, out.Dim(out.NumDims()-1))
	copy(scores, out.Float32s())
	return scores, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter != nil {
		m.interpreter.Delete()
		m.options.Delete()
		m.model.Delete()
		m.interpreter = nil
	}
	return nil
}
