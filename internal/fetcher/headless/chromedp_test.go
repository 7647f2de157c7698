package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2, Settle: -time.Second})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	assert.Equal(t, 2, cap(fetcher.slots))
	assert.Equal(t, DefaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
	assert.Zero(t, fetcher.cfg.Settle)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.NoError(t, fetcher.acquire(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
	fetcher.release()
}

func TestFetchCanceledBeforeSlot(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetcher.Fetch(ctx, "https://opinion.lawmaking.go.kr/gcom/ogLmPp")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDocumentStatusKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	status := &documentStatus{}
	status.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404},
	})
	assert.Zero(t, status.get())

	status.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	status.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 500},
	})
	status.capture("not an event")
	assert.Equal(t, 200, status.get())
}

func TestExtraHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, (&Fetcher{}).extraHeaders())
	f := &Fetcher{cfg: Config{AcceptLanguage: "ko-KR"}}
	assert.Equal(t, network.Headers{"Accept-Language": "ko-KR"}, f.extraHeaders())
}
