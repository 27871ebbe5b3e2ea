package model

// Mail is a rendered email ready for the transport.
type Mail struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Post is a status update ready for the social client.
type Post struct {
	Status    string
	InReplyTo int64
}

// Channel names the transport a notification went out on.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelTwitter Channel = "twitter"
)
