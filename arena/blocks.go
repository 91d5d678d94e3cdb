package arena

import (
	"strconv"
	"strings"
)

// Visualize renders blocks as "| occup N | avail M | ".
func Visualize(blocks []BlockInfo) string {
	var sb strings.Builder
	sb.WriteString("| ")
	for _, b := range blocks {
		if b.Occupied {
			sb.WriteString("occup ")
		} else {
			sb.WriteString("avail ")
		}
		sb.WriteString(strconv.Itoa(b.Size))
		sb.WriteString(" | ")
	}
	return sb.String()
}

// sumBlocks returns the total size of blocks and the size of the free ones.
func sumBlocks(blocks []BlockInfo) (total, free int) {
	for _, b := range blocks {
		total += b.Size
		if !b.Occupied {
			free += b.Size
		}
	}
	return total, free
}
