package api

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"StandupBrief/cronclock"
	"StandupBrief/db"
	"StandupBrief/standup"
)

const defaultCronExpression = "0 9 * * MON-FRI"

var (
	reChannelMention = regexp.MustCompile(`<#(C\w+)(?:\|[^>]*)?>`)
	reUserMention    = regexp.MustCompile(`<@(U[0-9A-Z]+)(?:\|[^>]*)?>`)
)

// isSettingsCommand recognizes the admin command grammar. The grammar is
// deliberately strict: a bare keyword prefix is not enough, the command
// shape must be complete (a channel mention for setup, a parsable
// expression for cron, a mention for add/remove user). Anything looser
// would swallow genuine stand-up answers like "setup the new CI" or
// "helped the team debug the release".
func isSettingsCommand(text string) bool {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	switch {
	case lower == "help":
		return true
	case strings.HasPrefix(lower, "setup"):
		return extractChannelID(t) != ""
	case strings.HasPrefix(lower, "cron "):
		return cronclock.Validate(cronArgument(t)) == nil
	case strings.HasPrefix(lower, "questions:"):
		return true
	case strings.HasPrefix(lower, "add user"), strings.HasPrefix(lower, "remove user"):
		return len(extractUserIDs(t)) > 0
	}
	return false
}

// cronArgument strips the command keyword and an optional channel mention,
// leaving the expression itself.
func cronArgument(text string) string {
	t := strings.TrimSpace(text)
	return strings.TrimSpace(reChannelMention.ReplaceAllString(t[len("cron"):], ""))
}

// handleSettingsCommand is the settings collaborator: it owns every
// recurrence-setting write and rejects broken configurations before they
// are stored. The caller only routes here for the installing admin; every
// other participant's text is an answer.
func (h *Handler) handleSettingsCommand(ctx context.Context, ws *db.Workspace, env envelope) {
	replyTo := env.Event.Channel
	text := strings.TrimSpace(env.Event.Text)

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "setup"):
		h.handleSetup(ctx, ws, replyTo, text)
	case strings.HasPrefix(lower, "cron "):
		h.handleCron(ctx, env.TeamID, replyTo, text)
	case strings.HasPrefix(lower, "questions"):
		h.handleQuestions(ctx, env.TeamID, replyTo, text)
	case strings.HasPrefix(lower, "add user"):
		h.handleAddUsers(ctx, env.TeamID, replyTo, text)
	case strings.HasPrefix(lower, "remove user"):
		h.handleRemoveUsers(ctx, env.TeamID, replyTo, text)
	default:
		h.reply(ctx, env.TeamID, replyTo, helpMessage)
	}
}

func (h *Handler) handleSetup(ctx context.Context, ws *db.Workspace, replyTo, text string) {
	teamID := ws.TeamID

	channelID := extractChannelID(text)
	if channelID == "" {
		h.reply(ctx, teamID, replyTo,
			"Please mention the summary channel, like `setup #standups` (use autocomplete).")
		return
	}

	existing, err := h.settings.Get(teamID, channelID)
	if err != nil {
		h.replyStoreError(ctx, teamID, replyTo, err)
		return
	}
	if existing != nil {
		h.reply(ctx, teamID, replyTo,
			fmt.Sprintf("<#%s> is already set up. Adjust it with `cron`, `questions`, `add user` or `remove user`.", channelID))
		return
	}

	// Setup seeds the admin as the first participant, so the same
	// one-stand-up-per-person rule that guards `add user` applies here.
	taken, err := h.participantsElsewhere(teamID, channelID)
	if err != nil {
		h.replyStoreError(ctx, teamID, replyTo, err)
		return
	}
	if other := taken[ws.AdminUserID]; other != "" {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf(
			"You already belong to the stand-up in <#%s>; a person can only be in one. Run `remove user <@%s>` there first.",
			other, ws.AdminUserID))
		return
	}

	set := standup.Setting{
		TeamID:         teamID,
		ChannelID:      channelID,
		UserIDs:        []string{ws.AdminUserID},
		Questions:      h.cfg.DefaultQuestions,
		CronExpression: defaultCronExpression,
	}

	if h.saveSetting(ctx, teamID, replyTo, set) {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf(
			"✅ Stand-up created for <#%s> with the default questions, schedule `%s`, and you as the first participant.",
			channelID, defaultCronExpression))
	}
}

func (h *Handler) handleCron(ctx context.Context, teamID, replyTo, text string) {
	set, errMsg := h.resolveSetting(ctx, teamID, text)
	if set == nil {
		h.reply(ctx, teamID, replyTo, errMsg)
		return
	}

	expr := cronArgument(text)
	if err := cronclock.Validate(expr); err != nil {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf(
			"That cron expression doesn't parse: %v\nUse the 5-field form, like `cron 0 9 * * MON-FRI` (UTC).", err))
		return
	}

	set.CronExpression = expr
	if h.saveSetting(ctx, teamID, replyTo, *set) {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf(
			"✅ Schedule for <#%s> set to `%s` (next run %s UTC).",
			set.ChannelID, expr, set.NextFireDate))
	}
}

func (h *Handler) handleQuestions(ctx context.Context, teamID, replyTo, text string) {
	set, errMsg := h.resolveSetting(ctx, teamID, text)
	if set == nil {
		h.reply(ctx, teamID, replyTo, errMsg)
		return
	}

	lines := strings.Split(text, "\n")
	var questions []string
	for _, line := range lines[1:] {
		if q := strings.TrimSpace(line); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		h.reply(ctx, teamID, replyTo,
			"Write `questions:` on the first line, then one question per line below it.")
		return
	}

	set.Questions = questions
	if h.saveSetting(ctx, teamID, replyTo, *set) {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf(
			"✅ <#%s> will ask %d question(s) from the next run on. Today's already-started sessions keep their questions.",
			set.ChannelID, len(questions)))
	}
}

func (h *Handler) handleAddUsers(ctx context.Context, teamID, replyTo, text string) {
	set, errMsg := h.resolveSetting(ctx, teamID, text)
	if set == nil {
		h.reply(ctx, teamID, replyTo, errMsg)
		return
	}

	userIDs := extractUserIDs(text)
	if len(userIDs) == 0 {
		h.reply(ctx, teamID, replyTo, "Please mention at least one user, like `add user @alice`.")
		return
	}

	taken, err := h.participantsElsewhere(teamID, set.ChannelID)
	if err != nil {
		h.replyStoreError(ctx, teamID, replyTo, err)
		return
	}

	var updates, problems []string
	for _, userID := range userIDs {
		switch {
		case contains(set.UserIDs, userID):
			problems = append(problems, fmt.Sprintf("<@%s> is already on the list.", userID))
		case taken[userID] != "":
			problems = append(problems, fmt.Sprintf(
				"<@%s> already belongs to the stand-up in <#%s>; a person can only be in one.", userID, taken[userID]))
		default:
			set.UserIDs = append(set.UserIDs, userID)
			updates = append(updates, fmt.Sprintf("added <@%s>", userID))
		}
	}

	if len(updates) > 0 && !h.saveSetting(ctx, teamID, replyTo, *set) {
		return
	}
	h.replyOutcome(ctx, teamID, replyTo, updates, problems)
}

func (h *Handler) handleRemoveUsers(ctx context.Context, teamID, replyTo, text string) {
	set, errMsg := h.resolveSetting(ctx, teamID, text)
	if set == nil {
		h.reply(ctx, teamID, replyTo, errMsg)
		return
	}

	userIDs := extractUserIDs(text)
	if len(userIDs) == 0 {
		h.reply(ctx, teamID, replyTo, "Please mention at least one user, like `remove user @bob`.")
		return
	}

	var updates, problems []string
	for _, userID := range userIDs {
		if !contains(set.UserIDs, userID) {
			problems = append(problems, fmt.Sprintf("<@%s> isn't on the list.", userID))
			continue
		}
		set.UserIDs = remove(set.UserIDs, userID)
		updates = append(updates, fmt.Sprintf("removed <@%s>", userID))
	}

	if len(updates) > 0 {
		if len(set.UserIDs) == 0 {
			h.reply(ctx, teamID, replyTo,
				"A stand-up needs at least one participant; add someone before removing the last one.")
			return
		}
		if !h.saveSetting(ctx, teamID, replyTo, *set) {
			return
		}
	}
	h.replyOutcome(ctx, teamID, replyTo, updates, problems)
}

// saveSetting validates, reseeds the next fire instant and persists.
// Reports whether the write happened; validation problems are messaged to
// the admin and nothing is stored.
func (h *Handler) saveSetting(ctx context.Context, teamID, replyTo string, set standup.Setting) bool {
	if err := set.Validate(); err != nil {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf("That configuration isn't valid: %v", err))
		return false
	}

	next, err := cronclock.ResolveNext(set.CronExpression, time.Now())
	if err != nil {
		h.reply(ctx, teamID, replyTo, fmt.Sprintf("That configuration isn't valid: %v", err))
		return false
	}
	set.NextFireDate = next.UTC().Format(standup.DateLayout)
	set.NextFireTimestamp = next.Unix()

	if err := h.settings.Put(set); err != nil {
		h.replyStoreError(ctx, teamID, replyTo, err)
		return false
	}

	h.log.Info("setting saved",
		"team", set.TeamID, "channel", set.ChannelID,
		"participants", len(set.UserIDs), "cron", set.CronExpression,
		"next_fire", set.NextFireDate)
	return true
}

// resolveSetting picks the setting a command targets: an explicit channel
// mention wins, otherwise the team's single setting.
func (h *Handler) resolveSetting(ctx context.Context, teamID, text string) (*standup.Setting, string) {
	if channelID := extractChannelID(text); channelID != "" {
		set, err := h.settings.Get(teamID, channelID)
		if err != nil {
			return nil, "I couldn't load that channel's settings. Please try again."
		}
		if set == nil {
			return nil, fmt.Sprintf("<#%s> has no stand-up yet. Run `setup <#%s>` first.", channelID, channelID)
		}
		return set, ""
	}

	sets, err := h.settings.ByTeam(teamID)
	if err != nil {
		return nil, "I couldn't load your settings. Please try again."
	}
	switch len(sets) {
	case 0:
		return nil, "No stand-up configured yet. Run `setup #channel` first."
	case 1:
		return &sets[0], ""
	default:
		return nil, "You have several stand-ups; mention the channel, like `cron 0 9 * * MON-FRI #standups`."
	}
}

// participantsElsewhere maps user IDs to the channel of another setting
// that already contains them.
func (h *Handler) participantsElsewhere(teamID, exceptChannelID string) (map[string]string, error) {
	sets, err := h.settings.ByTeam(teamID)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]string)
	for _, s := range sets {
		if s.ChannelID == exceptChannelID {
			continue
		}
		for _, userID := range s.UserIDs {
			taken[userID] = s.ChannelID
		}
	}
	return taken, nil
}

func (h *Handler) replyOutcome(ctx context.Context, teamID, replyTo string, updates, problems []string) {
	var b strings.Builder
	if len(updates) > 0 {
		b.WriteString("✅ " + strings.Join(updates, ", ") + "\n")
	}
	for _, p := range problems {
		b.WriteString("• " + p + "\n")
	}
	if b.Len() == 0 {
		b.WriteString(helpMessage)
	}
	h.reply(ctx, teamID, replyTo, strings.TrimRight(b.String(), "\n"))
}

func (h *Handler) replyStoreError(ctx context.Context, teamID, replyTo string, err error) {
	h.log.Error("settings command failed", "team", teamID, "err", err)
	h.reply(ctx, teamID, replyTo, "Something went wrong on my side, please try again.")
}

func (h *Handler) reply(ctx context.Context, teamID, channelID, text string) {
	if _, err := h.gateway.SendDirect(ctx, teamID, channelID, text); err != nil {
		h.log.Error("failed to send settings reply", "team", teamID, "err", err)
	}
}

func extractChannelID(text string) string {
	if m := reChannelMention.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	return ""
}

func extractUserIDs(text string) []string {
	var users []string
	for _, m := range reUserMention.FindAllStringSubmatch(text, -1) {
		users = append(users, m[1])
	}
	return users
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
