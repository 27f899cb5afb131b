package model

import (
	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"github.com/newsflow-io/newsflow/dedup"
	. "github.com/newsflow-io/newsflow/utils/log"
)

/*

Post is one piece of news flowing through the pipeline

Id: primary key, assigned at construction, used as the durable store key and
    in delivery receipts
Text: post body in plain text
SourceTimestamp: the origin-supplied ISO-8601 timestamp, kept verbatim
Timestamp: epoch seconds derived from SourceTimestamp, 0 if unparseable
ChannelId: integer identity of the originating source channel
ChannelTitle: display name of the source channel, "Unknown" if absent
Fingerprint: 64-bit simhash of Text, always recomputed at construction and
    never accepted from outside; not serialized to subscribers

Tonality/Trend/Volatility: classification labels appended by the scoring
	stage, empty until the post has been scored
*/

type Post struct {
	Id              string `json:"id"`
	Text            string `json:"text"`
	SourceTimestamp string `json:"source_timestamp"`
	Timestamp       int64  `json:"timestamp"`
	ChannelId       int64  `json:"channel_id"`
	ChannelTitle    string `json:"channel_title"`
	Fingerprint     uint64 `json:"-"`

	Tonality   string `json:"tonality,omitempty"`
	Trend      string `json:"trend,omitempty"`
	Volatility string `json:"volatility,omitempty"`
}

// NewPost builds an immutable Post from one upstream message. The timestamp
// is normalized best-effort: an unparseable value is logged and leaves
// Timestamp at 0 rather than rejecting the post. An empty channel title
// defaults to "Unknown".
func NewPost(text, sourceTimestamp string, channelId int64, channelTitle string) *Post {
	var epoch int64
	t, err := dateparse.ParseAny(sourceTimestamp)
	if err != nil {
		Log.Warnf("invalid timestamp %q: %v", sourceTimestamp, err)
	} else {
		epoch = t.Unix()
	}

	if channelTitle == "" {
		channelTitle = "Unknown"
	}

	return &Post{
		Id:              uuid.New().String(),
		Text:            text,
		SourceTimestamp: sourceTimestamp,
		Timestamp:       epoch,
		ChannelId:       channelId,
		ChannelTitle:    channelTitle,
		Fingerprint:     dedup.Fingerprint(text),
	}
}
