package pong

import "math"

// FollowBall is the stock AI opponent: it chases the ball's y position with a
// dead zone so it doesn't jitter, and ignores the ball while it travels away.
type FollowBall struct {
	// DeadZone is how far the ball may drift from the paddle center before
	// the AI reacts. Zero means always chase.
	DeadZone float64
}

func (p FollowBall) Move(s State, side int) Direction {
	movingAway := (side == 0 && s.VelX > 0) || (side == 1 && s.VelX < 0)
	if movingAway {
		return DirNone
	}

	diff := s.BallY - s.Paddles[side]
	if math.Abs(diff) <= p.DeadZone {
		return DirNone
	}
	if diff < 0 {
		return DirUp
	}
	return DirDown
}
