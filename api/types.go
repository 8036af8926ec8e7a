package api

type urlVerification struct {
	Challenge string `json:"challenge"`
	Type      string `json:"type"`
}

type envelope struct {
	Type      string `json:"type"`
	TeamID    string `json:"team_id"`
	APIAppID  string `json:"api_app_id"`
	EventID   string `json:"event_id"`
	EventTime int    `json:"event_time"`
	Event     event  `json:"event"`
}

type event struct {
	Type            string  `json:"type"`
	Subtype         string  `json:"subtype"`
	User            string  `json:"user"`
	Text            string  `json:"text"`
	Channel         string  `json:"channel"`
	ChannelType     string  `json:"channel_type"`
	Timestamp       string  `json:"ts"`
	EventTimestamp  string  `json:"event_ts"`
	Hidden          bool    `json:"hidden"`
	Message         message `json:"message"`
	PreviousMessage message `json:"previous_message"`
}

type message struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
	Edited    edited `json:"edited"`
}

type edited struct {
	User      string `json:"user"`
	Timestamp string `json:"ts"`
}

type oauthResponse struct {
	Ok          bool       `json:"ok"`
	AppID       string     `json:"app_id"`
	AuthedUser  authedUser `json:"authed_user"`
	Scope       string     `json:"scope"`
	TokenType   string     `json:"token_type"`
	AccessToken string     `json:"access_token"`
	BotUserID   string     `json:"bot_user_id"`
	Team        team       `json:"team"`
	Error       string     `json:"error,omitempty"`
}

type authedUser struct {
	ID string `json:"id"`
}

type team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
