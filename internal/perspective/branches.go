package perspective

import "github.com/fpang/baby-monitor/internal/assets"

// DefaultBranches returns the two analysis branches: emotion and posture
// safety, then environment and overall safety. A fresh slice is returned on
// every call.
func DefaultBranches() []Branch {
	return []Branch{
		{
			Name: "branch1",
			Tasks: []Task{
				{Perspective: "emotion_behavior", Prompt: assets.EmotionBehaviorPrompt},
				{Perspective: "safety", Prompt: assets.SafetyPosturePrompt},
			},
		},
		{
			Name: "branch2",
			Tasks: []Task{
				{Perspective: "environment_event", Prompt: assets.EnvironmentEventPrompt},
				{Perspective: "safety", Prompt: assets.OverallSafetyPrompt},
			},
		},
	}
}
