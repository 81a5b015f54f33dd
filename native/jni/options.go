package jni

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/wippyai/bfbridge"
)

// BridgeClass is the JNI name of the Java side of the bridge.
const BridgeClass = "org/camicroscope/BFBridge"

// Classpath expands a directory of jars into a JVM class path. Unlike the
// java launcher, JNI_CreateJavaVM does not expand "dir/*", so every entry is
// listed explicitly.
func Classpath(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no classpath supplied")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("a single classpath folder containing jars was expected: %w", err)
	}
	dir = strings.TrimRight(dir, string(filepath.Separator)) + string(filepath.Separator)

	parts := []string{dir, dir + "*"}
	var jars []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			continue
		}
		jars = append(jars, dir+e.Name())
	}
	sort.Strings(jars)
	return strings.Join(append(parts, jars...), string(os.PathListSeparator)), nil
}

// vmOptions returns the JavaVMOption strings for MakeVM.
func vmOptions(resourcePath, cachePath string) ([]string, error) {
	cp, err := Classpath(resourcePath)
	if err != nil {
		return nil, err
	}
	opts := []string{"-Djava.class.path=" + cp, "-XX:+UseParallelGC"}
	if cachePath != "" {
		opts = append(opts, "-Dbfbridge.cachedir="+cachePath)
	}
	return opts, nil
}

// javaMethod returns the bridge method name and JNI descriptor behind fn,
// e.g. BFOpenBytes (IIIII)I.
func javaMethod(fn bfbridge.Func) (name, descriptor string) {
	var b strings.Builder
	b.WriteString("BF")
	for _, word := range strings.Split(strings.TrimPrefix(fn.String(), "bf_"), "_") {
		switch word {
		case "rgb", "mpp", "ome", "xml":
			b.WriteString(strings.ToUpper(word))
		case "8", "16":
			b.WriteString(word + "Bit")
		case "bit":
		default:
			r := []rune(word)
			r[0] = unicode.ToUpper(r[0])
			b.WriteString(string(r))
		}
	}
	name = b.String()

	descriptor = "(" + strings.Repeat("I", fn.Arity()) + ")"
	if fn.ReturnsDouble() {
		descriptor += "D"
	} else {
		descriptor += "I"
	}
	return name, descriptor
}

var jniCodes = map[int]string{
	-1: "JNI_ERR",
	-2: "JNI_EDETACHED",
	-3: "JNI_EVERSION",
	-4: "JNI_ENOMEM",
	-5: "JNI_EEXIST",
	-6: "JNI_EINVAL",
}

// codeError describes a negative JNI return code.
func codeError(call string, code int) string {
	name, ok := jniCodes[code]
	if !ok {
		name = "unknown error"
	}
	return fmt.Sprintf("%s failed with %d (%s)", call, code, name)
}
