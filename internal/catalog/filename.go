package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	separatorRuns   = regexp.MustCompile(`[\s-]+`)
	disallowedChars = regexp.MustCompile(`[^a-z0-9._]`)
)

// MediaFileName derives the upload file name from the product name: lowered,
// separator runs collapsed to underscores, anything outside [a-z0-9._]
// stripped, suffixed with the gallery position.
func MediaFileName(productName string, position int) string {
	formatted := strings.ToLower(productName)
	formatted = separatorRuns.ReplaceAllString(formatted, "_")
	formatted = disallowedChars.ReplaceAllString(formatted, "")
	return fmt.Sprintf("%s_%d.jpg", formatted, position)
}

// mediaFilePath prefixes the file name with the catalog's two-letter shard
// directories, e.g. "/d/i/dipirona_0.jpg".
func mediaFilePath(fileName string) string {
	first, second := shardLetter(fileName, 0), shardLetter(fileName, 1)
	return fmt.Sprintf("/%s/%s/%s", first, second, fileName)
}

func shardLetter(fileName string, index int) string {
	if index < len(fileName) {
		return string(fileName[index])
	}
	return "_"
}
