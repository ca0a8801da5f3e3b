package engine

// WinThreshold is the number of locked columns that wins the game.
const WinThreshold = 3

// checkWin completes the game when player holds WinThreshold locked columns.
// It returns the winning columns, or nil when the game continues.
func (s *State) checkWin(player string) []int {
	locked := s.LockedColumns(player)
	if len(locked) < WinThreshold {
		return nil
	}
	s.Game.Status = StatusCompleted
	s.Game.Winner = player
	return locked
}
