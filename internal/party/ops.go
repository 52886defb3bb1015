package party

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Operations in this file are pure with respect to I/O: they validate their
// input, mutate the receiver, and return a typed error. Persistence happens
// in the Store after the operation succeeds.

// AddFoodie appends a unique guest name to the foodie list.
func (s *State) AddFoodie(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationf("name is required")
	}
	for _, existing := range s.Foodies {
		if existing == name {
			return validationf("name already exists")
		}
	}
	s.Foodies = append(s.Foodies, name)
	return nil
}

// UpsertDrinker records a guest's drink count and keeps the leaderboard
// sorted descending. The sort is stable: ties keep insertion order.
func (s *State) UpsertDrinker(name string, count int) error {
	if strings.TrimSpace(name) == "" || count < 1 {
		return validationf("name and a count of at least 1 are required")
	}
	found := false
	for i := range s.Drinkers {
		if s.Drinkers[i].Name == name {
			s.Drinkers[i].Count = count
			found = true
			break
		}
	}
	if !found {
		s.Drinkers = append(s.Drinkers, Drinker{Name: name, Count: count})
	}
	sort.SliceStable(s.Drinkers, func(i, j int) bool {
		return s.Drinkers[i].Count > s.Drinkers[j].Count
	})
	return nil
}

// UpsertGamePreference records a guest's preferred game, latest wins.
func (s *State) UpsertGamePreference(name, preference string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(preference) == "" {
		return validationf("name and preference are required")
	}
	for i := range s.GamePreferences {
		if s.GamePreferences[i].Name == name {
			s.GamePreferences[i].Preference = preference
			return nil
		}
	}
	s.GamePreferences = append(s.GamePreferences, GamePreference{Name: name, Preference: preference})
	return nil
}

// UpsertVibeVote records a guest's vibe tags, latest wins.
func (s *State) UpsertVibeVote(name string, vibes []string) error {
	if strings.TrimSpace(name) == "" {
		return validationf("name is required")
	}
	if len(vibes) == 0 {
		return validationf("at least one vibe is required")
	}
	for _, v := range vibes {
		if _, ok := validVibes[v]; !ok {
			return validationf("unknown vibe: %s", v)
		}
	}
	for i := range s.VibeVotes {
		if s.VibeVotes[i].Name == name {
			s.VibeVotes[i].Vibes = append([]string{}, vibes...)
			return nil
		}
	}
	s.VibeVotes = append(s.VibeVotes, VibeVote{Name: name, Vibes: append([]string{}, vibes...)})
	return nil
}

// LikeKrystal increments the birthday-person like counter.
func (s *State) LikeKrystal() int {
	s.KrystalLikes++
	return s.KrystalLikes
}

// SetMemberLikes sets a member's like counter to the client-supplied value.
// The client increments locally first; the server stores the result.
func (s *State) SetMemberLikes(memberID string, likes int) error {
	if strings.TrimSpace(memberID) == "" {
		return validationf("memberId is required")
	}
	if likes < 0 {
		return validationf("likes must not be negative")
	}
	s.MemberLikes[memberID] = likes
	return nil
}

// SetMemberComments replaces a member's comment list wholesale.
func (s *State) SetMemberComments(memberID string, comments []Comment) error {
	if strings.TrimSpace(memberID) == "" {
		return validationf("memberId is required")
	}
	if comments == nil {
		comments = []Comment{}
	}
	for i := range comments {
		comments[i].Text = strings.TrimSpace(comments[i].Text)
		if utf8.RuneCountInString(comments[i].Text) > MaxMessageLen {
			return validationf("comment must be %d characters or less", MaxMessageLen)
		}
	}
	s.MemberComments[memberID] = comments
	return nil
}

// ReplaceCustomMembers swaps the custom member list atomically.
func (s *State) ReplaceCustomMembers(members []Member) {
	if members == nil {
		members = []Member{}
	}
	s.CustomMembers = members
}

// ReplaceSupportMembers swaps the support member list atomically.
func (s *State) ReplaceSupportMembers(members []Member) {
	if members == nil {
		members = []Member{}
	}
	s.SupportMembers = members
}

// ReplaceNavMenuItems swaps the navigation menu atomically.
func (s *State) ReplaceNavMenuItems(items []NavMenuItem) {
	if items == nil {
		items = []NavMenuItem{}
	}
	s.NavMenuItems = items
}

// ReplaceTimeline swaps the schedule atomically.
func (s *State) ReplaceTimeline(entries []TimelineEntry) {
	if entries == nil {
		entries = []TimelineEntry{}
	}
	s.Timeline = entries
}

// ReplacePartyInfo swaps the static event description.
func (s *State) ReplacePartyInfo(info PartyInfo) {
	s.PartyInfo = info
}

// RecordVisit appends a visit record and trims the history to the most
// recent MaxVisitHistory entries, dropping from the front.
func (s *State) RecordVisit(ip, userAgent string) Visit {
	v := Visit{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		IP:        ip,
		UserAgent: userAgent,
	}
	s.Visits++
	s.LastVisit = v.Timestamp
	s.VisitHistory = append(s.VisitHistory, v)
	if n := len(s.VisitHistory); n > MaxVisitHistory {
		s.VisitHistory = append([]Visit{}, s.VisitHistory[n-MaxVisitHistory:]...)
	}
	return v
}

// =============================================================================
// Game Lobbies
// =============================================================================

// CreateLobby opens a lobby with the organizer as its first participant.
func (s *State) CreateLobby(organizer, game, when, message string) (*Lobby, error) {
	if strings.TrimSpace(organizer) == "" || strings.TrimSpace(game) == "" {
		return nil, validationf("organizer and game are required")
	}
	lobby := Lobby{
		ID:           s.newLobbyID(),
		Organizer:    organizer,
		Game:         game,
		Time:         when,
		Message:      message,
		Participants: []string{organizer},
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	s.GameLobbies = append(s.GameLobbies, lobby)
	return &s.GameLobbies[len(s.GameLobbies)-1], nil
}

// newLobbyID derives a time-based token, bumping the millisecond value on
// collision so two lobbies created in the same instant stay distinct.
func (s *State) newLobbyID() string {
	ms := time.Now().UnixMilli()
	for {
		id := fmt.Sprintf("lobby_%d", ms)
		if s.findLobby(id) == -1 {
			return id
		}
		ms++
	}
}

func (s *State) findLobby(id string) int {
	for i := range s.GameLobbies {
		if s.GameLobbies[i].ID == id {
			return i
		}
	}
	return -1
}

// JoinLobby adds a participant to an open lobby. Joining twice is rejected.
func (s *State) JoinLobby(id, userName string) (*Lobby, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, validationf("userName is required")
	}
	idx := s.findLobby(id)
	if idx == -1 {
		return nil, &NotFoundError{Resource: "lobby", ID: id}
	}
	lobby := &s.GameLobbies[idx]
	for _, p := range lobby.Participants {
		if p == userName {
			return nil, validationf("already joined")
		}
	}
	lobby.Participants = append(lobby.Participants, userName)
	return lobby, nil
}

// DeleteLobby removes a lobby. Only the organizer may delete it; the check
// is an exact string match on the caller-supplied organizer.
func (s *State) DeleteLobby(id, organizer string) error {
	idx := s.findLobby(id)
	if idx == -1 {
		return &NotFoundError{Resource: "lobby", ID: id}
	}
	if s.GameLobbies[idx].Organizer != organizer {
		return &ForbiddenError{Reason: "only the organizer may delete a lobby"}
	}
	s.GameLobbies = append(s.GameLobbies[:idx], s.GameLobbies[idx+1:]...)
	return nil
}

// =============================================================================
// Party Scene Characters
// =============================================================================

// NewCharacterInput carries the fields accepted when a guest joins the scene.
type NewCharacterInput struct {
	DisplayName string
	AvatarURL   string
	BodyStyle   string
	Transport   string
	Action      string
}

// AddCharacter places a new guest avatar into the scene at a random
// position. The roster is capped at MaxCharacters.
func (s *State) AddCharacter(in NewCharacterInput) (*Character, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, validationf("display name is required")
	}
	if utf8.RuneCountInString(name) > MaxDisplayName {
		return nil, validationf("display name must be %d characters or less", MaxDisplayName)
	}
	if in.AvatarURL == "" {
		return nil, validationf("avatar URL is required")
	}
	if len(s.Characters) >= MaxCharacters {
		return nil, validationf("party is full, maximum %d characters allowed", MaxCharacters)
	}

	bodyStyle := in.BodyStyle
	if bodyStyle == "" {
		bodyStyle = BodyStyleCasual
	}
	transport := in.Transport
	if transport == "" {
		transport = TransportWalk
	}
	action := in.Action
	if action == "" {
		action = ActionIdle
	}
	if _, ok := validBodyStyles[bodyStyle]; !ok {
		return nil, validationf("unknown body style: %s", bodyStyle)
	}
	if _, ok := validTransports[transport]; !ok {
		return nil, validationf("unknown transport: %s", transport)
	}
	if _, ok := validActions[action]; !ok {
		return nil, validationf("unknown action: %s", action)
	}

	now := time.Now().UTC()
	ch := Character{
		ID:          uuid.New().String(),
		DisplayName: name,
		AvatarURL:   in.AvatarURL,
		BodyStyle:   bodyStyle,
		Transport:   transport,
		Action:      action,
		Position:    Position{X: rand.Intn(800), Y: rand.Intn(600)},
		Messages:    []Message{},
		JoinedAt:    now,
		LastUpdated: now,
	}
	s.Characters = append(s.Characters, ch)
	return &s.Characters[len(s.Characters)-1], nil
}

func (s *State) findCharacter(id string) int {
	for i := range s.Characters {
		if s.Characters[i].ID == id {
			return i
		}
	}
	return -1
}

// GetCharacter returns the character with the given id.
func (s *State) GetCharacter(id string) (*Character, error) {
	idx := s.findCharacter(id)
	if idx == -1 {
		return nil, &NotFoundError{Resource: "character", ID: id}
	}
	return &s.Characters[idx], nil
}

// CharacterUpdate carries the optional fields of a character patch.
type CharacterUpdate struct {
	BodyStyle *string
	Transport *string
	Action    *string
	Position  *Position
}

// UpdateCharacter applies a partial update to a character's appearance.
func (s *State) UpdateCharacter(id string, upd CharacterUpdate) (*Character, error) {
	idx := s.findCharacter(id)
	if idx == -1 {
		return nil, &NotFoundError{Resource: "character", ID: id}
	}
	ch := &s.Characters[idx]
	if upd.BodyStyle != nil {
		if _, ok := validBodyStyles[*upd.BodyStyle]; !ok {
			return nil, validationf("unknown body style: %s", *upd.BodyStyle)
		}
		ch.BodyStyle = *upd.BodyStyle
	}
	if upd.Transport != nil {
		if _, ok := validTransports[*upd.Transport]; !ok {
			return nil, validationf("unknown transport: %s", *upd.Transport)
		}
		ch.Transport = *upd.Transport
	}
	if upd.Action != nil {
		if _, ok := validActions[*upd.Action]; !ok {
			return nil, validationf("unknown action: %s", *upd.Action)
		}
		ch.Action = *upd.Action
	}
	if upd.Position != nil {
		ch.Position = *upd.Position
	}
	ch.LastUpdated = time.Now().UTC()
	return ch, nil
}

// LikeCharacter increments a character's like counter.
func (s *State) LikeCharacter(id string) (int, error) {
	idx := s.findCharacter(id)
	if idx == -1 {
		return 0, &NotFoundError{Resource: "character", ID: id}
	}
	s.Characters[idx].Likes++
	return s.Characters[idx].Likes, nil
}

// AddCharacterMessage attaches a chat bubble to a character.
func (s *State) AddCharacterMessage(id, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationf("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLen {
		return nil, validationf("message must be %d characters or less", MaxMessageLen)
	}
	idx := s.findCharacter(id)
	if idx == -1 {
		return nil, &NotFoundError{Resource: "character", ID: id}
	}
	ch := &s.Characters[idx]
	ch.Messages = append(ch.Messages, Message{Content: content, CreatedAt: time.Now().UTC()})
	ch.LastUpdated = time.Now().UTC()
	return &ch.Messages[len(ch.Messages)-1], nil
}

// DeleteCharacter removes a character from the scene.
func (s *State) DeleteCharacter(id string) error {
	idx := s.findCharacter(id)
	if idx == -1 {
		return &NotFoundError{Resource: "character", ID: id}
	}
	s.Characters = append(s.Characters[:idx], s.Characters[idx+1:]...)
	return nil
}

// =============================================================================
// Stats
// =============================================================================

// Stats is the derived aggregate served by GET /api/stats.
type Stats struct {
	TotalVisits          int     `json:"totalVisits"`
	LastVisit            string  `json:"lastVisit,omitempty"`
	FoodiesCount         int     `json:"foodiesCount"`
	DrinkersCount        int     `json:"drinkersCount"`
	TotalDrinks          int     `json:"totalDrinks"`
	GamePreferencesCount int     `json:"gamePreferencesCount"`
	KrystalLikes         int     `json:"krystalLikes"`
	RecentVisits         []Visit `json:"recentVisits"`
}

// ComputeStats derives the aggregate counters. Recent visits are the last
// ten entries, newest first.
func (s *State) ComputeStats() Stats {
	totalDrinks := 0
	for _, d := range s.Drinkers {
		totalDrinks += d.Count
	}

	start := len(s.VisitHistory) - 10
	if start < 0 {
		start = 0
	}
	recent := make([]Visit, 0, len(s.VisitHistory)-start)
	for i := len(s.VisitHistory) - 1; i >= start; i-- {
		recent = append(recent, s.VisitHistory[i])
	}

	return Stats{
		TotalVisits:          s.Visits,
		LastVisit:            s.LastVisit,
		FoodiesCount:         len(s.Foodies),
		DrinkersCount:        len(s.Drinkers),
		TotalDrinks:          totalDrinks,
		GamePreferencesCount: len(s.GamePreferences),
		KrystalLikes:         s.KrystalLikes,
		RecentVisits:         recent,
	}
}
