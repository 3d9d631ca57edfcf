package slackbot

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

const memberCacheTTL = 5 * time.Minute

// directory turns configured alert recipients (member IDs, names or email
// addresses) into member IDs. The workspace member list is fetched lazily
// and cached for memberCacheTTL.
type directory struct {
	list func(ctx context.Context) ([]slack.User, error)
	now  func() time.Time

	mu        sync.Mutex
	members   []slack.User
	fetchedAt time.Time
}

func newDirectory(api *slack.Client) *directory {
	return &directory{
		list: func(ctx context.Context) ([]slack.User, error) { return api.GetUsersContext(ctx) },
		now:  time.Now,
	}
}

func (d *directory) memberList(ctx context.Context) ([]slack.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members != nil && d.now().Sub(d.fetchedAt) < memberCacheTTL {
		return d.members, nil
	}
	members, err := d.list(ctx)
	if err != nil {
		return nil, err
	}
	d.members, d.fetchedAt = members, d.now()
	return members, nil
}

// resolve returns the member IDs for recipients plus the recipients that
// matched nobody. IDs are passed through without a lookup.
func (d *directory) resolve(ctx context.Context, recipients []string) (ids, unresolved []string, err error) {
	var lookups []string
	for _, r := range recipients {
		r = strings.TrimPrefix(strings.TrimSpace(r), "@")
		switch {
		case r == "":
		case looksLikeMemberID(r):
			ids = append(ids, r)
		default:
			lookups = append(lookups, r)
		}
	}
	if len(lookups) > 0 {
		members, lerr := d.memberList(ctx)
		if lerr != nil {
			return dedupe(ids), lookups, lerr
		}
		for _, want := range lookups {
			i := slices.IndexFunc(members, func(u slack.User) bool { return memberMatches(want, u) })
			if i < 0 {
				unresolved = append(unresolved, want)
				continue
			}
			ids = append(ids, members[i].ID)
		}
	}
	return dedupe(ids), unresolved, nil
}

func memberMatches(want string, u slack.User) bool {
	if strings.Contains(want, "@") {
		return u.Profile.Email != "" && strings.EqualFold(want, u.Profile.Email)
	}
	return coversName(want, u.Name) || coversName(want, u.RealName) || coversName(want, u.Profile.DisplayName)
}

// looksLikeMemberID matches U/W-prefixed upper-case alphanumeric IDs.
func looksLikeMemberID(s string) bool {
	if len(s) < 9 || (s[0] != 'U' && s[0] != 'W') {
		return false
	}
	return strings.IndexFunc(s[1:], func(r rune) bool {
		return (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	}) < 0
}

func dedupe(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

func nameTokens(s string) []string {
	s = parenthetical.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Fields(nonAlnum.ReplaceAllString(s, " "))
}

// coversName reports whether every token of want appears in candidate:
// "Dana" covers "Dana Quality", the reverse does not hold.
func coversName(want, candidate string) bool {
	wt, ct := nameTokens(want), nameTokens(candidate)
	if len(wt) == 0 || len(ct) == 0 {
		return false
	}
	for _, t := range wt {
		if !slices.Contains(ct, t) {
			return false
		}
	}
	return true
}
