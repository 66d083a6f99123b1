package internal

import (
	"encoding/json"
	"errors"
)

// 棋盤尺寸（標準四子棋：6 列 × 7 欄，連成 4 子獲勝）
const (
	Rows      = 6
	Cols      = 7
	WinLength = 4
)

// Token 回合代號
//
// 只有 P1 / P2 兩種，不綁定任何帳號身份，
// 由房間的回合指標決定目前輪到誰。
type Token string

const (
	NoToken Token = ""
	P1      Token = "P1"
	P2      Token = "P2"
)

// Valid 是否為可落子的代號
func (t Token) Valid() bool {
	return t == P1 || t == P2
}

// Opponent 回傳對手代號
func (t Token) Opponent() Token {
	if t == P1 {
		return P2
	}
	return P1
}

var (
	ErrColumnOutOfRange = errors.New("column out of range")
	ErrColumnFull       = errors.New("column full")
	ErrInvalidToken     = errors.New("invalid token")
)

// Board 棋盤
//
// Board[row][col]，row 0 在最上方，row Rows-1 在最底部。
// 格子一旦被佔用就不會再變回空格。
type Board [Rows][Cols]Token

// Drop 在指定欄位落子（重力規則：佔用最底部的空格）
//
// 任何錯誤都不會修改棋盤：
//   - 欄位超出範圍 → ErrColumnOutOfRange
//   - 代號無效 → ErrInvalidToken
//   - 欄位已滿 → ErrColumnFull
func (b *Board) Drop(col int, t Token) (int, error) {
	if col < 0 || col >= Cols {
		return -1, ErrColumnOutOfRange
	}
	if !t.Valid() {
		return -1, ErrInvalidToken
	}

	// 由下往上找第一個空格
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == NoToken {
			b[row][col] = t
			return row, nil
		}
	}

	return -1, ErrColumnFull
}

// At 讀取格子，超出範圍回傳 NoToken
func (b *Board) At(row, col int) Token {
	if !InBounds(row, col) {
		return NoToken
	}
	return b[row][col]
}

// InBounds 座標是否在棋盤內
func InBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// Height 欄位已落子數
func (b *Board) Height(col int) int {
	if col < 0 || col >= Cols {
		return 0
	}
	n := 0
	for row := Rows - 1; row >= 0 && b[row][col] != NoToken; row-- {
		n++
	}
	return n
}

// IsFull 棋盤是否已無空格
func (b *Board) IsFull() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == NoToken {
			return false
		}
	}
	return true
}

// MarshalJSON 序列化為二維陣列，空格輸出 null（與前端既有格式相容）
func (b Board) MarshalJSON() ([]byte, error) {
	grid := make([][]*string, Rows)
	for row := range grid {
		grid[row] = make([]*string, Cols)
		for col := range grid[row] {
			if t := b[row][col]; t != NoToken {
				s := string(t)
				grid[row][col] = &s
			}
		}
	}
	return json.Marshal(grid)
}

// UnmarshalJSON 反序列化，null 視為空格
func (b *Board) UnmarshalJSON(data []byte) error {
	var grid [][]*string
	if err := json.Unmarshal(data, &grid); err != nil {
		return err
	}
	if len(grid) != Rows {
		return errors.New("invalid board rows")
	}

	var out Board
	for row := range grid {
		if len(grid[row]) != Cols {
			return errors.New("invalid board cols")
		}
		for col, cell := range grid[row] {
			if cell != nil {
				out[row][col] = Token(*cell)
			}
		}
	}
	*b = out
	return nil
}
