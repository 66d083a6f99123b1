package internal

import "encoding/json"

// Position 棋盤座標
type Position struct {
	Row int
	Col int
}

// MarshalJSON 輸出為 [row, col]
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

// UnmarshalJSON 讀取 [row, col]
func (p *Position) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Row, p.Col = pair[0], pair[1]
	return nil
}

// Direction 掃描方向（列增量, 欄增量）
type Direction struct {
	DRow int
	DCol int
}

// Directions 四個主要方向，順序即掃描順序
var Directions = [4]Direction{
	{DRow: 0, DCol: 1},  // 水平
	{DRow: 1, DCol: 0},  // 垂直
	{DRow: 1, DCol: 1},  // 右下斜
	{DRow: 1, DCol: -1}, // 左下斜（等同右上斜）
}

// FindWin 找出 player 的連線
//
// 演算法：
//
//	依列優先順序走訪每個屬於 player 的格子，
//	對每個方向從該格起走 WinLength 步，
//	全部在界內且屬於 player 就回傳這 WinLength 個座標（依走訪順序）。
//
// 複雜度 O(Rows × Cols × 4 × WinLength)。
// 掃描順序固定，所以同一個盤面永遠回傳同一條連線。
// 沒有連線時回傳 nil。
func FindWin(b *Board, player Token) []Position {
	if !player.Valid() {
		return nil
	}

	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			if b[row][col] != player {
				continue
			}
			for _, d := range Directions {
				if run := walk(b, row, col, d, player); run != nil {
					return run
				}
			}
		}
	}

	return nil
}

// walk 從 (row, col) 沿 d 走 WinLength 步，中途斷掉就回傳 nil
func walk(b *Board, row, col int, d Direction, player Token) []Position {
	run := make([]Position, 0, WinLength)
	for i := 0; i < WinLength; i++ {
		r, c := row+i*d.DRow, col+i*d.DCol
		if !InBounds(r, c) || b[r][c] != player {
			return nil
		}
		run = append(run, Position{Row: r, Col: c})
	}
	return run
}
