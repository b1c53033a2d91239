package tetris

// framesPerCell is the NTSC drop speed for levels 0 through 8.
var framesPerCell = [...]int{48, 43, 38, 33, 28, 23, 18, 13, 8}

// Gravity returns the number of frames between automatic drops at a level.
func Gravity(level int) int {
	switch {
	case level < 0:
		return framesPerCell[0]
	case level < len(framesPerCell):
		return framesPerCell[level]
	case level == 9:
		return 6
	case level <= 12:
		return 5
	case level <= 15:
		return 4
	case level <= 18:
		return 3
	case level <= 28:
		return 2
	default:
		return 1
	}
}

// LockDelay returns the entry delay after a piece locks with its lowest mino
// on row lowestY: ten frames plus two for every four rows above the floor.
func LockDelay(lowestY int) int {
	band := (Height - 1 - lowestY + 2) / 4
	if band < 0 {
		band = 0
	}
	return 10 + 2*band
}
