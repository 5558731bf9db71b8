package telegram

// API object subset. Only the fields the bot reads are declared; unknown
// fields are dropped on decode.

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Name returns the user's display name, preferring the full name over the
// handle.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// ForwardOrigin describes where a forwarded message came from. Type is
// "channel" for forwarded channel posts, the only origin the bot acts on.
type ForwardOrigin struct {
	Type      string `json:"type"`
	Chat      *Chat  `json:"chat"`
	MessageID int64  `json:"message_id"`
}

type Message struct {
	MessageID    int64          `json:"message_id"`
	From         *User          `json:"from"`
	Chat         Chat           `json:"chat"`
	Date         int64          `json:"date"`
	Text         string         `json:"text"`
	Caption      string         `json:"caption"`
	Photo        []PhotoSize    `json:"photo"`
	Document     *Document      `json:"document"`
	MediaGroupID string         `json:"media_group_id"`
	ReplyTo      *Message       `json:"reply_to_message"`
	Forward      *ForwardOrigin `json:"forward_origin"`
}

type Update struct {
	UpdateID    int64    `json:"update_id"`
	Message     *Message `json:"message"`
	ChannelPost *Message `json:"channel_post"`
}

type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}
