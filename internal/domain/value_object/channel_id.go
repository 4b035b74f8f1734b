package value_object

import "github.com/google/uuid"

// ChannelID is a process-unique handle for a channel.
type ChannelID struct{ val uuid.UUID }

func NewChannelID() ChannelID { return ChannelID{uuid.New()} }

func (c ChannelID) String() string         { return c.val.String() }
func (c ChannelID) Equal(o ChannelID) bool { return c.val == o.val }
func (c ChannelID) IsZero() bool           { return c.val == uuid.Nil }
