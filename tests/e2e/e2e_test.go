//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseURL = getEnv("PULSE_API_URL", "http://127.0.0.1:8080")
	apiBase = baseURL + "/api/v1"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type TestClient struct {
	httpClient *http.Client
}

func NewTestClient() *TestClient {
	jar, _ := cookiejar.New(nil)
	return &TestClient{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TestClient) Do(method, url string, body map[string]any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// TestFullLifecycle drives a live server through the signup, moderation, and
// audit surfaces end to end. The server is expected to run without a
// moderation endpoint configured, so submissions are held for review.
func TestFullLifecycle(t *testing.T) {
	slug := fmt.Sprintf("e2e-%d", time.Now().UnixNano()%1_000_000_000)
	tenantBase := apiBase + "/t/" + slug
	owner := NewTestClient()

	var questionID string

	t.Run("Tenant Signup and Login", func(t *testing.T) {
		resp, err := owner.Do("POST", apiBase+"/signup", map[string]any{
			"tenant_slug": slug,
			"tenant_name": "E2E Tenant",
			"email":       "owner@" + slug + ".test",
			"password":    "correct-horse-battery",
			"name":        "E2E Owner",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp, err = owner.Do("POST", tenantBase+"/auth/login", map[string]any{
			"email":    "owner@" + slug + ".test",
			"password": "correct-horse-battery",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp, err = owner.Do("GET", tenantBase+"/auth/me", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("Team Setup", func(t *testing.T) {
		resp, err := owner.Do("POST", tenantBase+"/teams", map[string]any{
			"slug": "general",
			"name": "General",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp, err = owner.Do("GET", tenantBase+"/teams", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("Anonymous Submission Held For Review", func(t *testing.T) {
		anon := NewTestClient()
		resp, err := anon.Do("POST", tenantBase+"/questions", map[string]any{
			"body": "What is the roadmap for next quarter?",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var q struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		decode(t, resp, &q)
		questionID = q.ID
		// No moderation endpoint configured: the pipeline fails closed.
		assert.Equal(t, "UNDER_REVIEW", q.Status)

		// Held questions are not listed publicly.
		resp, err = anon.Do("GET", tenantBase+"/questions", nil)
		require.NoError(t, err)
		var listing struct {
			Questions []struct {
				ID string `json:"id"`
			} `json:"questions"`
		}
		decode(t, resp, &listing)
		for _, listed := range listing.Questions {
			assert.NotEqual(t, questionID, listed.ID,
				"held question must not appear in the public listing")
		}
	})

	t.Run("Moderation Review and Release", func(t *testing.T) {
		resp, err := owner.Do("GET", tenantBase+"/moderation/queue", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var queue struct {
			Queue []struct {
				ID string `json:"id"`
			} `json:"queue"`
		}
		decode(t, resp, &queue)
		found := false
		for _, held := range queue.Queue {
			if held.ID == questionID {
				found = true
			}
		}
		require.True(t, found, "submission should sit in the review queue")

		resp, err = owner.Do("POST", tenantBase+"/moderation/"+questionID+"/approve", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var released struct {
			Status string `json:"status"`
		}
		decode(t, resp, &released)
		assert.Equal(t, "OPEN", released.Status)
	})

	t.Run("Interaction After Release", func(t *testing.T) {
		resp, err := owner.Do("POST", tenantBase+"/questions/"+questionID+"/upvote", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		// A second upvote by the same user must conflict.
		resp, err = owner.Do("POST", tenantBase+"/questions/"+questionID+"/upvote", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp.Body.Close()

		resp, err = owner.Do("POST", tenantBase+"/questions/"+questionID+"/answer", map[string]any{
			"answer": "The roadmap ships in Q4.",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var answered struct {
			Status string  `json:"status"`
			Answer *string `json:"answer"`
		}
		decode(t, resp, &answered)
		assert.Equal(t, "ANSWERED", answered.Status)
		require.NotNil(t, answered.Answer)
	})

	t.Run("Event Stream Token", func(t *testing.T) {
		resp, err := owner.Do("POST", tenantBase+"/events/token", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var minted struct {
			Token string `json:"token"`
		}
		decode(t, resp, &minted)
		assert.NotEmpty(t, minted.Token)
	})

	t.Run("Audit Trail", func(t *testing.T) {
		// Audit writes are asynchronous; give the writer a moment.
		time.Sleep(500 * time.Millisecond)

		resp, err := owner.Do("GET", tenantBase+"/audit?action_prefix=question.", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var trail struct {
			Records []struct {
				Action string `json:"action"`
			} `json:"records"`
		}
		decode(t, resp, &trail)
		assert.NotEmpty(t, trail.Records, "moderation decisions should be on the audit trail")

		resp, err = owner.Do("GET", tenantBase+"/audit/export?format=csv", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
		resp.Body.Close()
	})
}
