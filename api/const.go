package api

const (
	slackOAuthAuthorizeURL   = "https://slack.com/oauth/v2/authorize"
	slackOAuthTokenURL       = "https://slack.com/api/oauth.v2.access"
	slackOAuthAuthorizeScope = "chat:write,users:read,users.profile:read,channels:read,groups:read,im:history"
	slackCallbackEndpoint    = "/slack/oauth/callback"

	welcomeMessage = "🎉 Thanks for installing StandupBrief!\n\n" +
		"Set up a stand-up from this DM:\n\n" +
		"1. `setup #channel-name` — choose the summary channel\n" +
		"2. `cron 0 9 * * MON-FRI` — when to ask (5-field cron, UTC)\n" +
		"3. `questions:` followed by one question per line\n" +
		"4. `add user @alice @bob` — who gets asked\n\n" +
		"Participants answer one question at a time in their DM; " +
		"reply `cancel` to skip a day."

	helpMessage = "I didn't catch that. Try one of:\n" +
		"• `setup #channel`\n" +
		"• `cron 0 9 * * MON-FRI`\n" +
		"• `questions:` + one question per line\n" +
		"• `add user @name` / `remove user @name`"
)
