package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tianlai/party-server/internal/httputil"
	"github.com/tianlai/party-server/internal/party"
)

// writeOpError maps the domain error taxonomy onto HTTP statuses.
func writeOpError(w http.ResponseWriter, err error) {
	var ve *party.ValidationError
	var nfe *party.NotFoundError
	var fe *party.ForbiddenError
	switch {
	case errors.As(err, &ve):
		httputil.BadRequest(w, ve.Reason)
	case errors.As(err, &nfe):
		httputil.NotFound(w, nfe.Error())
	case errors.As(err, &fe):
		httputil.Forbidden(w, fe.Reason)
	default:
		httputil.InternalError(w, err.Error())
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "🎉 Birthday Party API is running!",
		"version": Version,
		"endpoints": map[string]string{
			"foodies":       "/api/foodies",
			"drinkers":      "/api/drinkers",
			"members":       "/api/member-likes",
			"comments":      "/api/member-comments",
			"customMembers": "/api/custom-members",
			"gameLobbies":   "/api/game-lobbies",
			"vibeVotes":     "/api/vibe-votes",
			"partyScene":    "/api/party-scene/characters",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   Version,
		"backend":   s.backendMode.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	state := s.store.Get()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "active",
		"service":   ServiceName,
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"statistics": map[string]any{
			"foodies":    len(state.Foodies),
			"drinkers":   len(state.Drinkers),
			"lobbies":    len(state.GameLobbies),
			"characters": len(state.Characters),
			"visits":     state.Visits,
		},
	})
}

// =============================================================================
// Party State
// =============================================================================

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handleMergeData(w http.ResponseWriter, r *http.Request) {
	var patch party.MergePatch
	if !httputil.DecodeJSON(w, r, &patch) {
		return
	}
	s.store.Merge(r.Context(), patch)
	httputil.WriteJSON(w, http.StatusOK, httputil.APIResponse{Success: true})
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		st.RecordVisit(httputil.ClientIP(r), r.UserAgent())
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.APIResponse{Success: true})
}

func (s *Server) handleAddFoodie(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var foodies []string
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.AddFoodie(input.Name); err != nil {
			return err
		}
		foodies = st.Foodies
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "foodies": foodies})
}

func (s *Server) handleUpsertDrinker(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var drinkers []party.Drinker
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.UpsertDrinker(input.Name, input.Count); err != nil {
			return err
		}
		drinkers = st.Drinkers
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "drinkers": drinkers})
}

func (s *Server) handleUpsertGamePreference(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name       string `json:"name"`
		Preference string `json:"preference"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var prefs []party.GamePreference
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.UpsertGamePreference(input.Name, input.Preference); err != nil {
			return err
		}
		prefs = st.GamePreferences
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "gamePreferences": prefs})
}

func (s *Server) handleLikeKrystal(w http.ResponseWriter, r *http.Request) {
	var likes int
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		likes = st.LikeKrystal()
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "likes": likes})
}

func (s *Server) handleUpsertVibeVote(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name  string   `json:"name"`
		Vibes []string `json:"vibes"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var votes []party.VibeVote
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.UpsertVibeVote(input.Name, input.Vibes); err != nil {
			return err
		}
		votes = st.VibeVotes
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "vibeVotes": votes})
}

func (s *Server) handleSetMemberLikes(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MemberID string `json:"memberId"`
		Likes    int    `json:"likes"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var likes map[string]int
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.SetMemberLikes(input.MemberID, input.Likes); err != nil {
			return err
		}
		likes = st.MemberLikes
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "memberLikes": likes})
}

func (s *Server) handleSetMemberComments(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MemberID string          `json:"memberId"`
		Comments []party.Comment `json:"comments"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var comments map[string][]party.Comment
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		if err := st.SetMemberComments(input.MemberID, input.Comments); err != nil {
			return err
		}
		comments = st.MemberComments
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "memberComments": comments})
}

func (s *Server) handleReplaceCustomMembers(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CustomMembers []party.Member `json:"customMembers"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var members []party.Member
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		st.ReplaceCustomMembers(input.CustomMembers)
		members = st.CustomMembers
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "customMembers": members})
}

// =============================================================================
// Game Lobbies
// =============================================================================

func (s *Server) handleListLobbies(w http.ResponseWriter, r *http.Request) {
	state := s.store.Get()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"lobbies": state.GameLobbies})
}

func (s *Server) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Organizer string `json:"organizer"`
		Game      string `json:"game"`
		Time      string `json:"time"`
		Message   string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var lobby party.Lobby
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		created, err := st.CreateLobby(input.Organizer, input.Game, input.Time, input.Message)
		if err != nil {
			return err
		}
		lobby = *created
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "lobby": lobby})
}

func (s *Server) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var input struct {
		UserName string `json:"userName"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var lobby party.Lobby
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		joined, err := st.JoinLobby(id, input.UserName)
		if err != nil {
			return err
		}
		lobby = *joined
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "lobby": lobby})
}

func (s *Server) handleDeleteLobby(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var input struct {
		Organizer string `json:"organizer"`
	}
	// The organizer check still runs on an empty body; it just fails the
	// string match against the stored organizer.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&input)
	}

	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		return st.DeleteLobby(id, input.Organizer)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.APIResponse{Success: true})
}

// =============================================================================
// Stats & Admin
// =============================================================================

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.store.Get().ComputeStats())
}

func (s *Server) handleAdminFullData(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	data, err := json.MarshalIndent(s.store.Get(), "", "  ")
	if err != nil {
		httputil.InternalError(w, "failed to export data")
		return
	}
	filename := fmt.Sprintf("party-data-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	s.store.Reset(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.APIResponse{Success: true})
}

// =============================================================================
// Party Scene
// =============================================================================

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	state := s.store.Get()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"count":      len(state.Characters),
		"characters": state.Characters,
	})
}

func (s *Server) handleCreateCharacter(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DisplayName string `json:"displayName"`
		AvatarURL   string `json:"avatarUrl"`
		BodyStyle   string `json:"bodyStyle"`
		Transport   string `json:"transport"`
		Action      string `json:"action"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var character party.Character
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		created, err := st.AddCharacter(party.NewCharacterInput{
			DisplayName: input.DisplayName,
			AvatarURL:   input.AvatarURL,
			BodyStyle:   input.BodyStyle,
			Transport:   input.Transport,
			Action:      input.Action,
		})
		if err != nil {
			return err
		}
		character = *created
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "character": character})
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state := s.store.Get()
	character, err := state.GetCharacter(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "character": character})
}

func (s *Server) handleUpdateCharacter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var input struct {
		BodyStyle *string         `json:"bodyStyle"`
		Transport *string         `json:"transport"`
		Action    *string         `json:"action"`
		Position  *party.Position `json:"position"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var character party.Character
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		updated, err := st.UpdateCharacter(id, party.CharacterUpdate{
			BodyStyle: input.BodyStyle,
			Transport: input.Transport,
			Action:    input.Action,
			Position:  input.Position,
		})
		if err != nil {
			return err
		}
		character = *updated
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "character": character})
}

func (s *Server) handleLikeCharacter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var likes int
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		n, err := st.LikeCharacter(id)
		if err != nil {
			return err
		}
		likes = n
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "likes": likes})
}

func (s *Server) handleAddCharacterMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var input struct {
		Content string `json:"content"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	var message party.Message
	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		added, err := st.AddCharacterMessage(id, input.Content)
		if err != nil {
			return err
		}
		message = *added
		return nil
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

func (s *Server) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := s.store.Mutate(r.Context(), func(st *party.State) error {
		return st.DeleteCharacter(id)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.APIResponse{Success: true})
}
