package tournament

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pongarena/realtime/pkg/types"
)

// Browse is the tournament-id-less open-tournaments feed: a browsable list of
// tournaments created anywhere on the platform, independent of the session
// the identity may be in.
type Browse struct {
	mu     sync.Mutex
	selfID int64
	list   []types.Tournament
	// onCreated fires for each creation not caused by the local identity.
	onCreated func(types.Tournament)
	log       *zap.Logger
}

func NewBrowse(selfID int64, onCreated func(types.Tournament), log *zap.Logger) *Browse {
	if onCreated == nil {
		onCreated = func(types.Tournament) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Browse{selfID: selfID, onCreated: onCreated, log: log}
}

func (b *Browse) HandleEvent(ev types.OpenTournamentEvent) {
	t := *ev.Tournament

	b.mu.Lock()
	replaced := false
	for i := range b.list {
		if b.list[i].ID == t.ID {
			b.list[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		b.list = append(b.list, t)
	}
	b.mu.Unlock()

	b.log.Debug("open tournament broadcast",
		zap.Int64("tournament_id", t.ID),
		zap.String("name", t.Name))

	if !replaced && t.CreatorID != b.selfID {
		b.onCreated(t)
	}
}

func (b *Browse) All() []types.Tournament {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Tournament, len(b.list))
	copy(out, b.list)
	return out
}
