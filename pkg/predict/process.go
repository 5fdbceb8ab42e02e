package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ProcessPredictor invokes an external model process once per call,
// feeding it the feature vector as a JSON line on stdin and reading a
// single JSON response from stdout. The model's own format, training,
// and runtime are not this package's concern: Predict only needs the
// process to honor this narrow request/response contract.
type ProcessPredictor struct {
	// Path is the executable to run, typically a wrapper script around
	// whatever runtime the model was trained with.
	Path string

	// Timeout bounds how long a single invocation may take before it
	// is killed and treated as a predictor error.
	Timeout time.Duration
}

const defaultProcessTimeout = 2 * time.Second

// NewProcessPredictor constructs a ProcessPredictor for the model
// executable at path.
func NewProcessPredictor(path string) *ProcessPredictor {
	return &ProcessPredictor{Path: path, Timeout: defaultProcessTimeout}
}

type processRequest struct {
	Features []float64 `json:"features"`
}

type processResponse struct {
	Probability float64 `json:"probability"`
	Reason      string  `json:"reason"`
}

// Predict runs the configured executable once, passing features as a
// JSON request on stdin and parsing a JSON response from stdout.
func (p *ProcessPredictor) Predict(ctx context.Context, features []float64) (float64, string, error) {
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return 0, "", errNoPredictor
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := json.Marshal(processRequest{Features: features})
	if err != nil {
		return 0, "", fmt.Errorf("predict: encode request: %w", err)
	}

	cmd := exec.CommandContext(runCtx, p.Path)
	cmd.Stdin = bytes.NewReader(request)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err = cmd.Run()
	if err != nil {
		return 0, "", fmt.Errorf("predict: run model process: %w", err)
	}

	var response processResponse

	err = json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &response)
	if err != nil {
		return 0, "", fmt.Errorf("predict: decode response: %w", err)
	}

	if response.Probability < 0 || response.Probability > 1 {
		return 0, "", fmt.Errorf("predict: probability %.4f out of range", response.Probability)
	}

	return response.Probability, response.Reason, nil
}
