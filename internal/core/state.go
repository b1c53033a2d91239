package core

// GameState summarizes a running game for front ends.
type GameState struct {
	Score    int
	Lines    int
	Level    int
	GameOver bool
}

// StepResult is returned after each simulation tick.
type StepResult struct {
	State GameState
	// Frames is how many emulator frames the step executed.
	Frames int
}
