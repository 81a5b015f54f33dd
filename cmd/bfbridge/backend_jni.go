//go:build bfbridge_jni && cgo

package main

import (
	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/native/jni"
)

func init() {
	backends["jni"] = backend{new: func(options, *zap.Logger) bfbridge.Native {
		return jni.Default()
	}}
}
