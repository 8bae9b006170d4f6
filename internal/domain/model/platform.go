package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlatform is returned when a platform name is not one of the known networks.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform is the lowercase name of a social network ("twitter", "github").
type Platform string

const (
	PlatformTwitter     Platform = "twitter"
	PlatformYouTube     Platform = "youtube"
	PlatformFacebook    Platform = "facebook"
	PlatformInstagram   Platform = "instagram"
	PlatformTikTok      Platform = "tiktok"
	PlatformRumble      Platform = "rumble"
	PlatformParler      Platform = "parler"
	PlatformGab         Platform = "gab"
	PlatformMeWe        Platform = "mewe"
	PlatformTruthSocial Platform = "truthsocial"
	PlatformBitChute    Platform = "bitchute"
	PlatformTelegram    Platform = "telegram"
	PlatformReddit      Platform = "reddit"
	PlatformBluesky     Platform = "bluesky"
	PlatformThreads     Platform = "threads"
	PlatformMastodon    Platform = "mastodon"
	PlatformTwitch      Platform = "twitch"
	PlatformKick        Platform = "kick"
	PlatformSnapchat    Platform = "snapchat"
	PlatformOdysee      Platform = "odysee"
	PlatformDiscord     Platform = "discord"
	PlatformGitHub      Platform = "github"
)

// Network describes a known social network.
type Network struct {
	Platform    Platform
	DisplayName string
	Domain      string
}

var knownNetworks = []Network{
	{PlatformTwitter, "Twitter", "x.com"},
	{PlatformYouTube, "YouTube", "youtube.com"},
	{PlatformFacebook, "Facebook", "facebook.com"},
	{PlatformInstagram, "Instagram", "instagram.com"},
	{PlatformTikTok, "TikTok", "tiktok.com"},
	{PlatformRumble, "Rumble", "rumble.com"},
	{PlatformParler, "Parler", "parler.com"},
	{PlatformGab, "Gab", "gab.com"},
	{PlatformMeWe, "MeWe", "mewe.com"},
	{PlatformTruthSocial, "Truth Social", "truthsocial.com"},
	{PlatformBitChute, "BitChute", "bitchute.com"},
	{PlatformTelegram, "Telegram", "telegram.org"},
	{PlatformReddit, "Reddit", "reddit.com"},
	{PlatformBluesky, "Bluesky", "bsky.app"},
	{PlatformThreads, "Threads", "threads.net"},
	{PlatformMastodon, "Mastodon", "mastodon.online"},
	{PlatformTwitch, "Twitch", "twitch.tv"},
	{PlatformKick, "Kick", "kick.com"},
	{PlatformSnapchat, "Snapchat", "snapchat.com"},
	{PlatformOdysee, "Odysee", "odysee.com"},
	{PlatformDiscord, "Discord", "discord.com"},
	{PlatformGitHub, "GitHub", "github.com"},
}

// KnownNetworks returns every network a handle may be recorded for.
func KnownNetworks() []Network {
	out := make([]Network, len(knownNetworks))
	copy(out, knownNetworks)
	return out
}

// ParsePlatform resolves a platform name case-insensitively. Unknown names
// return an error wrapping ErrUnknownPlatform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, n := range knownNetworks {
		if n.Platform == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// NetworkFor returns the network metadata for p.
func NetworkFor(p Platform) (Network, bool) {
	for _, n := range knownNetworks {
		if n.Platform == p {
			return n, true
		}
	}
	return Network{}, false
}

// String returns the platform name.
func (p Platform) String() string {
	return string(p)
}
