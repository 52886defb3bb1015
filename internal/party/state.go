// Package party holds the party state aggregate and the pure mutation
// operations applied to it by the HTTP layer.
package party

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Vibe tags accepted by the vibe poll.
const (
	VibeDrinking = "drinking"
	VibeCard     = "card"
	VibeBoard    = "board"
	VibeVideo    = "video"
	VibeChill    = "chill"
)

var validVibes = map[string]struct{}{
	VibeDrinking: {},
	VibeCard:     {},
	VibeBoard:    {},
	VibeVideo:    {},
	VibeChill:    {},
}

// Character appearance enums for the virtual party scene.
const (
	BodyStyleCasual = "casual"
	BodyStyleFormal = "formal"
	BodyStyleParty  = "party"

	TransportWalk    = "walk"
	TransportBalloon = "balloon"
	TransportSkate   = "skate"

	ActionIdle  = "idle"
	ActionWave  = "wave"
	ActionDance = "dance"
)

var (
	validBodyStyles = map[string]struct{}{BodyStyleCasual: {}, BodyStyleFormal: {}, BodyStyleParty: {}}
	validTransports = map[string]struct{}{TransportWalk: {}, TransportBalloon: {}, TransportSkate: {}}
	validActions    = map[string]struct{}{ActionIdle: {}, ActionWave: {}, ActionDance: {}}
)

const (
	// MaxVisitHistory bounds the visit ring buffer.
	MaxVisitHistory = 100

	// MaxCharacters caps the party scene roster.
	MaxCharacters = 50

	// MaxDisplayName bounds a scene character's display name, in characters.
	MaxDisplayName = 20

	// MaxMessageLen bounds comment and scene message bodies, in characters.
	MaxMessageLen = 200
)

// Drinker is one entry on the drink leaderboard.
type Drinker struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GamePreference records one guest's preferred game.
type GamePreference struct {
	Name       string `json:"name"`
	Preference string `json:"preference"`
}

// VibeVote records the vibe tags one guest voted for.
type VibeVote struct {
	Name  string   `json:"name"`
	Vibes []string `json:"vibes"`
}

// Comment is a message left on a team member's card.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Member is a team member card, either a built-in support member or a
// guest-created custom member.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"isDefault"`
}

// Lobby is an ad hoc game event a guest organizes.
type Lobby struct {
	ID           string   `json:"id"`
	Organizer    string   `json:"organizer"`
	Game         string   `json:"game"`
	Time         string   `json:"time"`
	Message      string   `json:"message"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"createdAt"`
}

// Visit is one entry in the visit history ring buffer.
type Visit struct {
	Timestamp string `json:"timestamp"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// NavMenuItem is one entry of the site navigation, served to the frontend.
type NavMenuItem struct {
	ID     string `json:"id" yaml:"id"`
	Label  string `json:"label" yaml:"label"`
	Target string `json:"target" yaml:"target"`
}

// PartyInfo is the static event description block.
type PartyInfo struct {
	Title       string `json:"title" yaml:"title"`
	Date        string `json:"date" yaml:"date"`
	Location    string `json:"location" yaml:"location"`
	Description string `json:"description" yaml:"description"`
}

// TimelineEntry is one item of the party schedule.
type TimelineEntry struct {
	Time        string `json:"time" yaml:"time"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Position locates a scene character on the canvas.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Message is a chat bubble attached to a scene character.
type Message struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Character is an uploaded-avatar guest in the virtual party scene.
type Character struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	BodyStyle   string    `json:"bodyStyle"`
	Transport   string    `json:"transport"`
	Action      string    `json:"action"`
	Position    Position  `json:"position"`
	Likes       int       `json:"likes"`
	Messages    []Message `json:"messages"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// State is the single aggregate holding all party data. It is owned by one
// Store instance; handlers never touch a State outside a Store operation.
type State struct {
	Foodies         []string             `json:"foodies"`
	Drinkers        []Drinker            `json:"drinkers"`
	GamePreferences []GamePreference     `json:"gamePreferences"`
	VibeVotes       []VibeVote           `json:"vibeVotes"`
	KrystalLikes    int                  `json:"krystalLikes"`
	MemberLikes     map[string]int       `json:"memberLikes"`
	MemberComments  map[string][]Comment `json:"memberComments"`
	CustomMembers   []Member             `json:"customMembers"`
	GameLobbies     []Lobby              `json:"gameLobbies"`
	SupportMembers  []Member             `json:"supportMembers"`
	NavMenuItems    []NavMenuItem        `json:"navMenuItems"`
	PartyInfo       PartyInfo            `json:"partyInfo"`
	Timeline        []TimelineEntry      `json:"timeline"`
	Characters      []Character          `json:"characters"`
	Visits          int                  `json:"visits"`
	LastVisit       string               `json:"lastVisit,omitempty"`
	VisitHistory    []Visit              `json:"visitHistory"`
}

// StaticContent carries the operator-provided static blocks seeded into a
// fresh state. All fields are optional.
type StaticContent struct {
	SupportMembers []Member        `yaml:"support_members"`
	NavMenuItems   []NavMenuItem   `yaml:"nav_menu"`
	PartyInfo      PartyInfo       `yaml:"party_info"`
	Timeline       []TimelineEntry `yaml:"timeline"`
}

// LoadStaticContent reads the optional YAML content file. A missing file is
// not an error; it yields empty content.
func LoadStaticContent(path string) (*StaticContent, error) {
	if path == "" {
		return &StaticContent{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StaticContent{}, nil
		}
		return nil, fmt.Errorf("read content file: %w", err)
	}
	var sc StaticContent
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse content file: %w", err)
	}
	return &sc, nil
}

// DefaultState is the canonical constructor. Every collection field is
// non-nil so handlers never need defensive initialization.
func DefaultState() *State {
	return &State{
		Foodies:         []string{},
		Drinkers:        []Drinker{},
		GamePreferences: []GamePreference{},
		VibeVotes:       []VibeVote{},
		MemberLikes:     map[string]int{},
		MemberComments:  map[string][]Comment{},
		CustomMembers:   []Member{},
		GameLobbies:     []Lobby{},
		SupportMembers:  []Member{},
		NavMenuItems:    []NavMenuItem{},
		Timeline:        []TimelineEntry{},
		Characters:      []Character{},
		VisitHistory:    []Visit{},
	}
}

// DefaultStateWith seeds the default state with static content.
func DefaultStateWith(sc *StaticContent) *State {
	s := DefaultState()
	if sc == nil {
		return s
	}
	if len(sc.SupportMembers) > 0 {
		s.SupportMembers = append([]Member{}, sc.SupportMembers...)
	}
	if len(sc.NavMenuItems) > 0 {
		s.NavMenuItems = append([]NavMenuItem{}, sc.NavMenuItems...)
	}
	if len(sc.Timeline) > 0 {
		s.Timeline = append([]TimelineEntry{}, sc.Timeline...)
	}
	s.PartyInfo = sc.PartyInfo
	return s
}

// Normalize re-establishes the non-nil field invariant after decoding a
// snapshot produced by an older process or an external editor.
func (s *State) Normalize() {
	if s.Foodies == nil {
		s.Foodies = []string{}
	}
	if s.Drinkers == nil {
		s.Drinkers = []Drinker{}
	}
	if s.GamePreferences == nil {
		s.GamePreferences = []GamePreference{}
	}
	if s.VibeVotes == nil {
		s.VibeVotes = []VibeVote{}
	}
	if s.MemberLikes == nil {
		s.MemberLikes = map[string]int{}
	}
	if s.MemberComments == nil {
		s.MemberComments = map[string][]Comment{}
	}
	if s.CustomMembers == nil {
		s.CustomMembers = []Member{}
	}
	if s.GameLobbies == nil {
		s.GameLobbies = []Lobby{}
	}
	if s.SupportMembers == nil {
		s.SupportMembers = []Member{}
	}
	if s.NavMenuItems == nil {
		s.NavMenuItems = []NavMenuItem{}
	}
	if s.Timeline == nil {
		s.Timeline = []TimelineEntry{}
	}
	if s.Characters == nil {
		s.Characters = []Character{}
	}
	if s.VisitHistory == nil {
		s.VisitHistory = []Visit{}
	}
	for i := range s.GameLobbies {
		if s.GameLobbies[i].Participants == nil {
			s.GameLobbies[i].Participants = []string{}
		}
	}
	for i := range s.Characters {
		if s.Characters[i].Messages == nil {
			s.Characters[i].Messages = []Message{}
		}
	}
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the store's writable instance.
func (s *State) Clone() *State {
	c := *s

	c.Foodies = append([]string{}, s.Foodies...)
	c.Drinkers = append([]Drinker{}, s.Drinkers...)
	c.GamePreferences = append([]GamePreference{}, s.GamePreferences...)
	c.CustomMembers = append([]Member{}, s.CustomMembers...)
	c.SupportMembers = append([]Member{}, s.SupportMembers...)
	c.NavMenuItems = append([]NavMenuItem{}, s.NavMenuItems...)
	c.Timeline = append([]TimelineEntry{}, s.Timeline...)
	c.VisitHistory = append([]Visit{}, s.VisitHistory...)

	c.VibeVotes = make([]VibeVote, len(s.VibeVotes))
	for i, v := range s.VibeVotes {
		v.Vibes = append([]string{}, v.Vibes...)
		c.VibeVotes[i] = v
	}

	c.GameLobbies = make([]Lobby, len(s.GameLobbies))
	for i, l := range s.GameLobbies {
		l.Participants = append([]string{}, l.Participants...)
		c.GameLobbies[i] = l
	}

	c.Characters = make([]Character, len(s.Characters))
	for i, ch := range s.Characters {
		ch.Messages = append([]Message{}, ch.Messages...)
		c.Characters[i] = ch
	}

	c.MemberLikes = make(map[string]int, len(s.MemberLikes))
	for k, v := range s.MemberLikes {
		c.MemberLikes[k] = v
	}
	c.MemberComments = make(map[string][]Comment, len(s.MemberComments))
	for k, v := range s.MemberComments {
		c.MemberComments[k] = append([]Comment{}, v...)
	}

	return &c
}
