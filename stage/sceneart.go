package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fateloom/fateloom/core"
)

// sceneChangeMarkers are narrative phrases that signal the party moved to a
// new location, the heuristic that fires the scene-art cue.
var sceneChangeMarkers = []string{
	"you enter", "you arrive", "you emerge", "you step into",
	"you find yourself", "the door opens", "you reach", "you descend",
	"you climb into", "before you lies", "opens up into",
}

// DetectSceneChange inspects the narrative for a location change and, when
// one is found, derives the image prompt for the scene-art cue.
func DetectSceneChange(st *State) {
	lower := strings.ToLower(st.Narrative)
	for _, marker := range sceneChangeMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			st.SceneChanged = true
			st.ScenePrompt = scenePrompt(st, st.Narrative[idx:])
			return
		}
	}
}

func scenePrompt(st *State, fragment string) string {
	fragment = firstSentence(fragment)
	tone := ""
	if st.Campaign != nil {
		tone = fmt.Sprintf("%s, %s. ", st.Campaign.Setting, st.Campaign.Tone)
	}
	return tone + "Illustrate this scene: " + fragment
}

// SceneArt generates an illustration when the scene-change heuristic fired.
// It is opportunistic: it runs concurrently with turn finalization under its
// own budget, and its absence or failure never degrades the turn result.
type SceneArt struct {
	Provider core.Provider
}

// Name implements Stage.
func (s *SceneArt) Name() string { return "scene_art" }

// Run implements Stage.
func (s *SceneArt) Run(ctx context.Context, st *State) error {
	if !st.SceneChanged {
		return nil
	}
	url, err := s.Provider.GenerateImage(ctx, st.ScenePrompt)
	if err != nil {
		return fmt.Errorf("scene art: %w", err)
	}
	st.SceneImageURL = url
	return nil
}
