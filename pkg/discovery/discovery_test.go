package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgelink-net/udplink/pkg/socket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	created, err := LoadOrCreateIdentity(path, "alpha")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "alpha", created.Name)

	// A second load returns the stored identity, not a fresh one.
	loaded, err := LoadOrCreateIdentity(path, "ignored")
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestLoadOrCreateIdentityRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := LoadOrCreateIdentity(path, "alpha")
	require.Error(t, err)
}

func TestAnnouncementRoundTrip(t *testing.T) {
	identity := Identity{ID: uuid.New(), Name: "node with spaces"}

	data := formatAnnouncement(identity, "10.0.0.5:9000")
	parsed, advertise, err := parseAnnouncement(data)
	require.NoError(t, err)

	assert.Equal(t, identity, parsed)
	assert.Equal(t, "10.0.0.5:9000", advertise)
}

func TestParseAnnouncementRejectsMalformedPayloads(t *testing.T) {
	for _, payload := range []string{
		"",
		"ULNK?",
		"random noise",
		"ULNK!",
		"ULNK!not-a-uuid 10.0.0.5:9000 name",
		"ULNK!" + uuid.NewString(),
		"ULNK!" + uuid.NewString() + " 10.0.0.5:9000",
	} {
		_, _, err := parseAnnouncement([]byte(payload))
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestHandleProbe(t *testing.T) {
	identity := Identity{ID: uuid.New(), Name: "beta"}
	responder := &Responder{
		identity:  identity,
		advertise: "192.0.2.7:5000",
		log:       logrus.NewEntry(logrus.New()),
	}
	sender := socket.Endpoint{Address: "127.0.0.1", Port: 4000}

	reply := responder.handleProbe([]byte(probePayload), sender)
	payload, ok := reply.Payload()
	require.True(t, ok)

	parsed, advertise, err := parseAnnouncement(payload)
	require.NoError(t, err)
	assert.Equal(t, identity, parsed)
	assert.Equal(t, "192.0.2.7:5000", advertise)

	// Anything that is not a probe is ignored.
	_, ok = responder.handleProbe([]byte("junk"), sender).Payload()
	assert.False(t, ok)
}

func TestPeerStore(t *testing.T) {
	store := NewPeerStore()
	assert.Empty(t, store.Peers())

	peer := Peer{
		Identity: Identity{ID: uuid.New(), Name: "gamma"},
		Source:   "127.0.0.1:4000",
		LastSeen: time.Now(),
	}
	store.Record(peer)

	got, ok := store.Get(peer.Identity.ID)
	require.True(t, ok)
	assert.Equal(t, peer, got)

	// Recording again refreshes the entry instead of duplicating it.
	peer.LastSeen = peer.LastSeen.Add(time.Minute)
	store.Record(peer)
	require.Len(t, store.Peers(), 1)
	got, _ = store.Get(peer.Identity.ID)
	assert.Equal(t, peer.LastSeen, got.LastSeen)

	_, ok = store.Get(uuid.New())
	assert.False(t, ok)
}

func TestProbeAndRespond(t *testing.T) {
	config := Config{
		Group:    "239.255.62.62",
		Port:     56060,
		LogLevel: logrus.ErrorLevel,
	}
	identity := Identity{ID: uuid.New(), Name: "delta"}

	responder, err := NewResponder(identity, "127.0.0.1:7777", config)
	if err != nil {
		t.Skipf("multicast not available in this environment: %v", err)
	}
	defer responder.Close()

	prober, err := NewProber(config)
	require.NoError(t, err)
	defer prober.Close()

	peer, err := prober.Probe(2 * time.Second)
	if err != nil {
		t.Skipf("no multicast delivery in this environment: %v", err)
	}

	assert.Equal(t, identity, peer.Identity)
	assert.Equal(t, "127.0.0.1:7777", peer.Advertise)

	stored, ok := prober.Store().Get(identity.ID)
	require.True(t, ok)
	assert.Equal(t, peer, stored)
}
