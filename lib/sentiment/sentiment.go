package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mapsentiment-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("lib/sentiment")

type Label string

const (
	Positive Label = "POS"
	Negative Label = "NEG"
	Neutral  Label = "NEU"
)

func (l Label) Valid() bool {
	return l == Positive || l == Negative || l == Neutral
}

// EmptyTextConfidence is the sentinel confidence attached to the neutral
// label given to empty reviews, which never reach the model.
const EmptyTextConfidence = 1.0

type Result struct {
	Label      Label
	Confidence float64
}

// Classifier scores a single text. Implementations hold no per-call state
// and are safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

type RemoteConfig struct {
	// base url of the model inference server hosting the pretrained
	// sentiment model
	BaseUrl   string `json:"base_url"`
	AuthToken string `json:"auth_token"`
	// zero means 30s
	TimeoutSeconds int `json:"timeout_seconds"`
	// request budget against the inference server, zero means 8/s
	MaxRequestsPerSecond int `json:"max_requests_per_second"`
}

// RemoteClassifier calls a text-classification inference server. The model
// itself is loaded once, server-side, outside this process's lifecycle.
type RemoteClassifier struct {
	http *resty.Client
}

func NewRemoteClassifier(config RemoteConfig) *RemoteClassifier {
	timeout := config.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	rps := config.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 8
	}

	client := resty.New()
	client.SetBaseURL(config.BaseUrl)
	client.SetTimeout(time.Duration(timeout) * time.Second)
	if config.AuthToken != "" {
		client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", config.AuthToken))
	}

	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "lib/sentiment/http")

	return &RemoteClassifier{http: client}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *RemoteClassifier) Classify(ctx context.Context, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()

	// the model's behavior on empty input is undefined, short circuit
	// to the neutral sentinel instead
	if strings.TrimSpace(text) == "" {
		return Result{Label: Neutral, Confidence: EmptyTextConfidence}, nil
	}

	var parsed classifyResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(classifyRequest{Text: text}).
		SetResult(&parsed).
		Post("/classify")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if res.IsError() {
		err = fmt.Errorf("inference server returned %s", res.Status())
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	result := Result{
		Label:      Label(parsed.Label),
		Confidence: parsed.Confidence,
	}
	if !result.Label.Valid() || result.Confidence < 0 || result.Confidence > 1 {
		err = fmt.Errorf("inference server returned invalid prediction %q/%v", parsed.Label, parsed.Confidence)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	return result, nil
}

// ClassifyAll scores every text on a bounded worker pool, preserving input
// order. It returns only after every worker finished, so callers always see
// a fully classified set.
func ClassifyAll(ctx context.Context, classifier Classifier, texts []string, workers int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "ClassifyAll")
	defer span.End()

	if workers <= 0 {
		workers = 4
	}

	results := make([]Result, len(texts))
	sem := make(chan struct{}, workers)
	wg := sync.WaitGroup{}

	var errList []error
	var errLock sync.Mutex

	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := classifier.Classify(ctx, text)
			if err != nil {
				errLock.Lock()
				errList = append(errList, err)
				errLock.Unlock()
				return
			}
			results[i] = result
		}(i, text)
	}
	wg.Wait()

	if err := errors.Join(errList...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return results, nil
}
