package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a configurable probe content provider for testing.
// Set Response/Error to control what Generate returns and Delay to simulate a slow provider.
type MockClient struct {
	mu sync.Mutex

	Response string
	Error    error
	Delay    time.Duration

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Response: `{"question": "Mock question?", "options": ["Yes", "No"]}`,
	}
}

func (c *MockClient) Name() string { return ProviderMock }

func (c *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	resp, err, delay := c.Response, c.Error, c.Delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// CallCount returns how many times Generate was called.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets the response to the default.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = `{"question": "Mock question?", "options": ["Yes", "No"]}`
	c.Error = nil
	c.Delay = 0
	c.Calls = nil
}
