// Package jni hosts the Java decoder in-process through the Java Native
// Interface.
//
// The backend is compiled only with the bfbridge_jni build tag and cgo:
//
//	CGO_CFLAGS="-I$JAVA_HOME/include -I$JAVA_HOME/include/linux" \
//	CGO_LDFLAGS="-L$JAVA_HOME/lib/server" \
//	go build -tags bfbridge_jni ./...
//
// The resource path is a directory of jars that includes the
// org.camicroscope.BFBridge class. A non-empty cache path is passed to the
// JVM as the bfbridge.cachedir system property.
//
// The JVM cannot be created twice in one process, so Default returns a
// single shared Backend, and a failed MakeVM is final.
package jni
