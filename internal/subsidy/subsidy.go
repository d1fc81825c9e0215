// Package subsidy models Dogecoin's block subsidy curve as two immutable,
// process-lifetime read-only structures loaded once from embedded data,
// per spec.md §9: a dense "wonky era" cumulative-coins table for the
// chain's irregular early blocks, and a closed-form schedule afterward.
// Both directions (height -> subsidy, coin index -> height) are pure
// functions, memoized with sync.Once over their one-time table load.
package subsidy

import (
	"bufio"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed wonky_cumulative.csv
var wonkyCumulativeCSV string

// WonkyEraEnd is the height at which Dogecoin's randomized early-block
// reward era ends and the closed-form halving schedule begins.
const WonkyEraEnd = 145000

const koinuPerDoge = 100_000_000

// postWonkyHalvingInterval and postWonkyFloor implement Dogecoin's
// documented post-wonky schedule: the block reward halves every 100,000
// blocks starting from 500,000 DOGE, floored at 10,000 DOGE forever once
// it would halve below that floor.
const (
	postWonkyHalvingInterval = 100_000
	postWonkyStartDoge       = 500_000
	postWonkyFloorDoge       = 10_000
)

type cumulativeEntry struct {
	height     uint64
	cumulative uint64
}

var (
	loadOnce    sync.Once
	loadErr     error
	cumulatives []cumulativeEntry
)

func load() {
	scanner := bufio.NewScanner(strings.NewReader(wonkyCumulativeCSV))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 && strings.HasPrefix(line, "height,") {
			continue // header
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			loadErr = fmt.Errorf("subsidy: malformed row %d: %q", lineNo, line)
			return
		}
		height, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			loadErr = fmt.Errorf("subsidy: bad height at row %d: %w", lineNo, err)
			return
		}
		cumulative, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			loadErr = fmt.Errorf("subsidy: bad cumulative at row %d: %w", lineNo, err)
			return
		}
		cumulatives = append(cumulatives, cumulativeEntry{height: height, cumulative: cumulative})
	}
}

func ensureLoaded() error {
	loadOnce.Do(load)
	return loadErr
}

// AtHeight returns the block subsidy, in koinu, for a given height.
// Heights at or past WonkyEraEnd use the closed-form post-wonky
// schedule; earlier heights use the average reward implied by the
// embedded cumulative table's bracket (the wonky era's true per-block
// reward was randomized and isn't reconstructible without the original
// chain data — see DESIGN.md).
func AtHeight(height uint64) (uint64, error) {
	if height >= WonkyEraEnd {
		return postWonkySubsidy(height), nil
	}
	if err := ensureLoaded(); err != nil {
		return 0, err
	}
	idx := bracketIndex(height)
	if idx+1 >= len(cumulatives) {
		return postWonkySubsidy(WonkyEraEnd), nil
	}
	lo, hi := cumulatives[idx], cumulatives[idx+1]
	span := hi.height - lo.height
	if span == 0 {
		return 0, nil
	}
	return (hi.cumulative - lo.cumulative) / span, nil
}

func postWonkySubsidy(height uint64) uint64 {
	halvings := (height - WonkyEraEnd) / postWonkyHalvingInterval
	doge := uint64(postWonkyStartDoge)
	for i := uint64(0); i < halvings; i++ {
		doge /= 2
		if doge <= postWonkyFloorDoge {
			doge = postWonkyFloorDoge
			break
		}
	}
	if doge < postWonkyFloorDoge {
		doge = postWonkyFloorDoge
	}
	return doge * koinuPerDoge
}

// CumulativeAt returns the total coins mined up to (not including)
// height, in koinu.
func CumulativeAt(height uint64) (uint64, error) {
	if height < WonkyEraEnd {
		if err := ensureLoaded(); err != nil {
			return 0, err
		}
		idx := bracketIndex(height)
		lo := cumulatives[idx]
		if idx+1 < len(cumulatives) {
			hi := cumulatives[idx+1]
			span := hi.height - lo.height
			if span > 0 {
				perBlock := (hi.cumulative - lo.cumulative) / span
				return lo.cumulative + perBlock*(height-lo.height), nil
			}
		}
		return lo.cumulative, nil
	}

	wonkyTotal, err := ensureWonkyTotal()
	if err != nil {
		return 0, err
	}
	total := wonkyTotal
	for h := uint64(WonkyEraEnd); h < height; h += postWonkyHalvingInterval {
		blocksInStep := postWonkyHalvingInterval
		if h+postWonkyHalvingInterval > height {
			blocksInStep = int(height - h)
		}
		total += postWonkySubsidy(h) * uint64(blocksInStep)
	}
	return total, nil
}

func ensureWonkyTotal() (uint64, error) {
	if err := ensureLoaded(); err != nil {
		return 0, err
	}
	return cumulatives[len(cumulatives)-1].cumulative, nil
}

// bracketIndex finds the last table entry whose height is <= the target.
func bracketIndex(height uint64) int {
	i := sort.Search(len(cumulatives), func(i int) bool {
		return cumulatives[i].height > height
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// HeightForCoinIndex converts an absolute coin index into the height of
// the block whose subsidy minted it, via binary search over the
// cumulative table for the wonky era and the closed-form inverse
// afterward.
func HeightForCoinIndex(coinIndex uint64) (uint64, error) {
	wonkyTotal, err := ensureWonkyTotal()
	if err != nil {
		return 0, err
	}
	if coinIndex < wonkyTotal {
		idx := sort.Search(len(cumulatives), func(i int) bool {
			return cumulatives[i].cumulative > coinIndex
		})
		if idx == 0 {
			return 0, nil
		}
		lo := cumulatives[idx-1]
		span := uint64(0)
		if idx < len(cumulatives) {
			span = cumulatives[idx].cumulative - lo.cumulative
		}
		if span == 0 {
			return lo.height, nil
		}
		heightSpan := cumulatives[idx].height - lo.height
		perBlock := span / heightSpan
		if perBlock == 0 {
			return lo.height, nil
		}
		offset := (coinIndex - lo.cumulative) / perBlock
		return lo.height + offset, nil
	}

	height := uint64(WonkyEraEnd)
	remaining := coinIndex - wonkyTotal
	for {
		reward := postWonkySubsidy(height)
		if reward == 0 {
			return height, nil
		}
		blocksInStep := uint64(postWonkyHalvingInterval)
		stepTotal := reward * blocksInStep
		if remaining < stepTotal {
			return height + remaining/reward, nil
		}
		remaining -= stepTotal
		height += blocksInStep
	}
}

// IsFirstCoinOfBlock reports whether the given coin index is the first
// unit minted by its block's subsidy — Dogecoin's ordinal-style
// "uncommon" rarity classification, used by internal/coinrange's
// RarityFunc.
func IsFirstCoinOfBlock(coinIndex uint64) bool {
	height, err := HeightForCoinIndex(coinIndex)
	if err != nil {
		return false
	}
	start, err := CumulativeAt(height)
	if err != nil {
		return false
	}
	return coinIndex == start
}
