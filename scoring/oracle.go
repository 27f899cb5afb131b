package scoring

import (
	"github.com/newsflow-io/newsflow/eventbus"
	"github.com/newsflow-io/newsflow/model"
	. "github.com/newsflow-io/newsflow/utils/log"
)

// Classification labels an oracle may stamp onto a post.
const (
	TonalityPositive = "POSITIVE"
	TonalityNegative = "NEGATIVE"
	TonalityNeutral  = "NEUTRAL"
)

// Oracle is the scoring collaborator contract. Score either rejects the post
// (second return false) or returns the post enriched with tonality, trend and
// volatility labels. The pipeline core depends only on this contract and
// knows nothing about an oracle's internals.
type Oracle interface {
	Score(post *model.Post) (*model.Post, bool)
}

// Relay bridges the oracle into the event bus: it consumes new posts, asks
// the oracle, and republishes approved posts. The gateway sees the oracle
// purely as another subscriber/publisher pair.
type Relay struct {
	oracle Oracle
	bus    eventbus.Publisher
}

func NewRelay(oracle Oracle, bus eventbus.Publisher) *Relay {
	return &Relay{oracle: oracle, bus: bus}
}

// Attach registers the relay on the new-post topic. Must be called before
// ingestion starts publishing.
func (r *Relay) Attach(bus eventbus.Subscriber) eventbus.Subscription {
	return bus.Subscribe(eventbus.TopicNewPost, r.handleNewPost)
}

func (r *Relay) handleNewPost(post *model.Post) {
	scored, ok := r.oracle.Score(post)
	if !ok {
		Log.Infof("post %s rejected by scoring", post.Id)
		return
	}
	r.bus.Publish(eventbus.TopicApprovedPost, scored)
}

// StaticOracle approves every post and stamps fixed labels. It stands in for
// the external scoring service during local runs and tests. Production
// oracles embed post text and own an EmbeddingCache to suppress rephrasings
// of stories they already ranked; StaticOracle carries no embedding model,
// so it holds no cache and never rejects.
type StaticOracle struct {
	Tonality   string
	Trend      string
	Volatility string
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		Tonality:   TonalityNeutral,
		Trend:      "FLAT",
		Volatility: "LOW",
	}
}

func (o *StaticOracle) Score(post *model.Post) (*model.Post, bool) {
	scored := *post
	scored.Tonality = o.Tonality
	scored.Trend = o.Trend
	scored.Volatility = o.Volatility
	return &scored, true
}
