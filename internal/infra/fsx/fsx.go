// Package fsx 封装 burst 落地用到的文件操作：同盘 rename、回拷、内部产物的原子写入。
package fsx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// renameFunc 可在测试中替换，用于模拟 EXDEV 等错误。
var renameFunc = os.Rename

// PathTypeConflictError 表示路径已被另一种类型占用（例如 burst 目录位置上是个文件）。
// 上层映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示照片与 bursts_root 不在同一文件系统，rename 返回 EXDEV。
// 不做 copy+delete 兜底：上层映射为 error_code=cross_device。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q；bursts_root 必须与照片目录在同一文件系统：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 移动 src 到 dst；EXDEV 包装为 *CrossDeviceError。
func Rename(src, dst string) error {
	err := renameFunc(src, dst)
	if err != nil && isEXDEV(err) {
		return &CrossDeviceError{Src: src, Dst: dst, Err: err}
	}
	return err
}

// WriteFileAtomicReplace 把 data 写到 dir/name，已有同名文件会被整体替换。
//
// 用于 report.json / photos.geojson；dir 不存在时创建。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return commitTemp(dir, name, bytes.NewReader(data), 0o644)
}

// CopyFile 把 src 复制到 dst 并保留权限位，用于 burst 第一个成员的回拷。
// dst 若已存在会被替换；是否允许由调用方判断。
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return &PathTypeConflictError{Path: src, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return commitTemp(filepath.Dir(dst), filepath.Base(dst), in, fi.Mode().Perm())
}

// commitTemp 先写入同目录的隐藏临时文件 ".<name>.tmp-*"（扫描会跳过），
// fsync 后 rename 成 name。任何一步失败都会清理临时文件，且不会留下半个 name。
func commitTemp(dir, name string, r io.Reader, perm os.FileMode) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力持久化目录项；Windows 不支持目录 Sync，直接跳过。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}
