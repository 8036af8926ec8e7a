package slack

// DisplayIdentity is the name and icon a summary is posted under.
type DisplayIdentity struct {
	Name    string
	IconURL string
}

// AttachmentField is one question/answer row of a summary attachment.
type AttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Attachment is the formatted summary block posted to the channel.
type Attachment struct {
	AuthorName string            `json:"author_name,omitempty"`
	AuthorIcon string            `json:"author_icon,omitempty"`
	Fields     []AttachmentField `json:"fields"`
}

type postMessageRequest struct {
	Channel     string       `json:"channel"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type updateMessageRequest struct {
	Channel     string       `json:"channel"`
	Ts          string       `json:"ts"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type deleteMessageRequest struct {
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
}

type apiResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
	Ts    string `json:"ts"`
}

type usersInfoResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		TZ string `json:"tz"`
	} `json:"user"`
}

type usersProfileResponse struct {
	Ok      bool   `json:"ok"`
	Error   string `json:"error"`
	Profile struct {
		RealName string `json:"real_name"`
		Image32  string `json:"image_32"`
	} `json:"profile"`
}
