package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stagelink/os2obs/internal/opensong"
	"github.com/stagelink/os2obs/internal/output"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const subscribePath = "/ws/subscribe/presentation"

type harness struct {
	mock      *opensong.MockServer
	bridge    *Bridge
	titlePath string
	versePath string
}

// startBridge runs a bridge against a fresh mock server. setup funcs run
// before the bridge dials, so handshake behavior can be staged.
func startBridge(t *testing.T, retry time.Duration, setup ...func(*opensong.MockServer)) *harness {
	t.Helper()

	mock := opensong.NewMockServer()
	for _, fn := range setup {
		fn(mock)
	}
	dir := t.TempDir()
	h := &harness{
		mock:      mock,
		titlePath: filepath.Join(dir, "title.txt"),
		versePath: filepath.Join(dir, "verse.txt"),
	}

	client := opensong.New(mock.URL, time.Second)
	writer := output.New(h.titlePath, h.versePath, false)
	h.bridge = New(Config{
		WSURL:         "ws://" + mock.Addr() + "/ws",
		SubscribePath: subscribePath,
		RetryDelay:    retry,
	}, client, writer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.bridge.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Error("bridge did not stop")
		}
		mock.Close()
		client.CloseIdle()
	})
	return h
}

func (h *harness) waitSubscribed(t *testing.T) string {
	t.Helper()
	select {
	case sub := <-h.mock.Subscribed:
		return sub
	case <-time.After(3 * time.Second):
		t.Fatal("bridge never subscribed")
		return ""
	}
}

func waitFileContent(t *testing.T, path, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == want
	}, 3*time.Second, 10*time.Millisecond, "file %s never contained %q", path, want)
}

func amazingGraceXML() string {
	return opensong.SlideXML(
		"Amazing Grace",
		[]string{"John Newton"},
		"12345",
		"Amazing grace, how sweet the sound",
	)
}

func TestBridgeSubscribesAndProcessesSlideChange(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(42, amazingGraceXML())

	sub := h.waitSubscribed(t)
	assert.Equal(t, subscribePath, sub)

	require.Eventually(t, h.bridge.Ready, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSubscribed, h.bridge.State())

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 42)))

	waitFileContent(t, h.versePath, "Amazing grace, how sweet the sound")
	waitFileContent(t, h.titlePath, "\"Amazing Grace\" - John Newton\nCCLI Song #12345")
	assert.Equal(t, 1, h.mock.SlideRequests(42))
}

func TestBridgeRepeatedStatusFetchesOnce(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(42, amazingGraceXML())
	h.mock.SetSlide(43, opensong.SlideXML("Next", nil, "", "next verse"))
	h.waitSubscribed(t)

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 42)))
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 42)))
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 42)))
	// A different slide afterwards proves the previous frames were handled.
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 43)))

	waitFileContent(t, h.versePath, "next verse")
	assert.Equal(t, 1, h.mock.SlideRequests(42))
	assert.Equal(t, 1, h.mock.SlideRequests(43))
}

func TestBridgeIgnoresIdleAndNonSlideFrames(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(3, opensong.SlideXML("Ignored", nil, "", "ignored"))
	h.mock.SetSlide(5, opensong.SlideXML("Wanted", nil, "", "wanted"))
	h.waitSubscribed(t)

	// Presentation not running: the slide number must not be fetched.
	require.NoError(t, h.mock.Push(opensong.StatusXML(false, 3)))
	// Plain acknowledgements and garbage are not notifications.
	require.NoError(t, h.mock.Push(opensong.AckConnected))
	require.NoError(t, h.mock.Push(opensong.AckAlreadySubscribed))
	require.NoError(t, h.mock.Push("something unexpected"))

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 5)))
	waitFileContent(t, h.versePath, "wanted")

	assert.Equal(t, 0, h.mock.SlideRequests(3))
	assert.Equal(t, 1, h.mock.SlideRequests(5))
}

func TestBridgeSlideZeroNotFetched(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(2, opensong.SlideXML("Two", nil, "", "two"))
	h.waitSubscribed(t)

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 0)))
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 2)))

	waitFileContent(t, h.versePath, "two")
	assert.Equal(t, 0, h.mock.SlideRequests(0))
}

func TestBridgeFetchFailureIsolation(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.FailSlide(5, 100)
	h.mock.SetSlide(7, opensong.SlideXML("Recovered", nil, "", "recovered"))
	h.waitSubscribed(t)

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 5)))
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 7)))

	// The failed notification is dropped and must not block the next one.
	waitFileContent(t, h.versePath, "recovered")
	assert.Equal(t, 1, h.mock.SlideRequests(5))

	// Nothing was written for the failed slide.
	data, err := os.ReadFile(h.titlePath)
	if err == nil {
		assert.NotContains(t, string(data), "5")
	}
}

func TestBridgeExtractFailureDropsNotification(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(9, `<?xml version="1.0"?><response><notaslide/></response>`)
	h.mock.SetSlide(10, opensong.SlideXML("After", nil, "", "after"))
	h.waitSubscribed(t)

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 9)))
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 10)))

	waitFileContent(t, h.versePath, "after")
	assert.Equal(t, 1, h.mock.SlideRequests(9))
}

func TestBridgeReconnectsAfterRemoteClose(t *testing.T) {
	h := startBridge(t, 20*time.Millisecond)
	h.mock.SetSlide(1, opensong.SlideXML("First", nil, "", "first"))
	h.mock.SetSlide(2, opensong.SlideXML("Second", nil, "", "second"))

	h.waitSubscribed(t)
	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 1)))
	waitFileContent(t, h.versePath, "first")

	h.mock.DropClient()

	// The bridge reconnects and resubscribes on its own.
	h.waitSubscribed(t)
	require.Eventually(t, h.bridge.Ready, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, h.mock.Push(opensong.StatusXML(true, 2)))
	waitFileContent(t, h.versePath, "second")
}

func TestBridgeRetriesUntilHandshakeSucceeds(t *testing.T) {
	h := startBridge(t, 10*time.Millisecond, func(m *opensong.MockServer) {
		m.FailWS(3)
	})

	h.waitSubscribed(t)
	// Three rejected handshakes plus the successful one.
	assert.Equal(t, 4, h.mock.WSAttempts())
}
