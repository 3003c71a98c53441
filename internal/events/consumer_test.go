package events

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"greenchain/internal/amm/poolregistry"
	"greenchain/pkg/domain"
)

const (
	announcedToken = "0x00000000000000000000000000000000000000A1"
	announcedPool  = "0x00000000000000000000000000000000000000aa"
)

func newTestConsumer() (*PoolConsumer, *poolregistry.Registry) {
	registry := poolregistry.New(nil, nil)
	return &PoolConsumer{registry: registry, logger: slog.Default()}, registry
}

func TestApplyFoldsAnnouncementIntoRegistry(t *testing.T) {
	consumer, registry := newTestConsumer()

	consumer.apply(&kgo.Record{
		Value: []byte(`{"certificate_token":"` + announcedToken + `","pool":"` + announcedPool + `"}`),
	})

	pool, err := registry.PoolFor(domain.MustAddress(announcedToken))
	require.NoError(t, err)
	assert.Equal(t, domain.MustAddress(announcedPool), pool)
}

func TestApplySkipsBadRecords(t *testing.T) {
	consumer, registry := newTestConsumer()

	consumer.apply(&kgo.Record{Value: []byte(`not json`)})
	consumer.apply(&kgo.Record{Value: []byte(`{"certificate_token":"bogus","pool":"` + announcedPool + `"}`)})
	consumer.apply(&kgo.Record{Value: []byte(`{"certificate_token":"` + announcedToken + `","pool":""}`)})

	assert.False(t, registry.Known(domain.MustAddress(announcedPool)))
}
