package clusterer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.responses) {
		return "", errors.New("fakeBackend: no more canned responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func TestClusterer_BelowMinKeywordsIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, true, 3)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c"})
	assert.Nil(t, topics)
	assert.Equal(t, 0, backend.calls)
}

func TestClusterer_DisabledIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, false, 3)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e", "f"})
	assert.Nil(t, topics)
	assert.Equal(t, 0, backend.calls)
}

func TestClusterer_Cluster_BareArrayResponse(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`[{"topic": "sports", "keywords": ["a", "b"]}]`,
		`{"hooks": ["catch the action"]}`,
	}}
	c := New(backend, true, 1)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.Len(t, topics, 1)
	assert.Equal(t, "sports", topics[0].TopicName)
	assert.Equal(t, []string{"a", "b"}, topics[0].Keywords)
	assert.Equal(t, []string{"catch the action"}, topics[0].Hooks)
	assert.Equal(t, "topic_1", topics[0].ID)
}

func TestClusterer_Cluster_WrappedClustersResponse(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		"```json\n" + `{"clusters": [{"topic": "music", "keywords": ["x"]}]}` + "\n```",
		`["hook one", "hook two"]`,
	}}
	c := New(backend, true, 2)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.Len(t, topics, 1)
	assert.Equal(t, "music", topics[0].TopicName)
	assert.Equal(t, []string{"hook one", "hook two"}, topics[0].Hooks)
}

func TestClusterer_Cluster_MapShapeResponse(t *testing.T) {
	backend := &fakeBackend{responses: []string{
		`{"weather": ["rain", "snow"]}`,
		"sunny days ahead\nbundle up",
	}}
	c := New(backend, true, 2)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.Len(t, topics, 1)
	assert.Equal(t, "weather", topics[0].TopicName)
	assert.Equal(t, []string{"sunny days ahead", "bundle up"}, topics[0].Hooks)
}

func TestClusterer_Cluster_UnparsableResponseReturnsNil(t *testing.T) {
	backend := &fakeBackend{responses: []string{"not json at all"}}
	c := New(backend, true, 2)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e"})
	assert.Nil(t, topics)
}

func TestClusterer_Cluster_BackendErrorReturnsNil(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	c := New(backend, true, 2)

	topics := c.Cluster(context.Background(), []string{"a", "b", "c", "d", "e"})
	assert.Nil(t, topics)
}

func TestNormalizeClusters_AllThreeShapes(t *testing.T) {
	array, err := normalizeClusters(`[{"topic": "t", "keywords": ["k"]}]`)
	require.NoError(t, err)
	require.Len(t, array, 1)

	wrapped, err := normalizeClusters(`{"clusters": [{"topic": "t2", "keywords": ["k2"]}]}`)
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "t2", wrapped[0].Topic)

	mapped, err := normalizeClusters(`{"t3": ["k3", "k4"]}`)
	require.NoError(t, err)
	require.Len(t, mapped, 1)
	assert.Equal(t, "t3", mapped[0].Topic)

	_, err = normalizeClusters("garbage")
	assert.Error(t, err)
}

func TestParseHooks_FallsBackToLineSplitting(t *testing.T) {
	hooks := parseHooks("1. first hook\n2. second hook\n- third hook", 3)
	assert.Equal(t, []string{"first hook", "second hook", "third hook"}, hooks)
}

func TestParseHooks_TruncatesToWant(t *testing.T) {
	hooks := parseHooks(`["a", "b", "c"]`, 2)
	assert.Equal(t, []string{"a", "b"}, hooks)
}

func TestStripFencedCode_RemovesMarkdownFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFencedCode("```json\n"+`{"a":1}`+"\n```"))
	assert.Equal(t, `{"a":1}`, stripFencedCode(`{"a":1}`))
}

func TestRateLimitedBackend_DelegatesToUnderlyingBackend(t *testing.T) {
	backend := &fakeBackend{responses: []string{"hello"}}
	limited := NewRateLimitedBackend(backend, 1000, 5)

	out, err := limited.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, backend.calls)
}

func TestRateLimitedBackend_CancelledContextErrors(t *testing.T) {
	backend := &fakeBackend{responses: []string{"hello"}}
	limited := NewRateLimitedBackend(backend, 0.001, 0) // effectively never refills

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := limited.Complete(ctx, "prompt")
	assert.Error(t, err)
	assert.Equal(t, 0, backend.calls)
}
