// Package history 在本地数据库中记录每次图像命令的执行情况（命令、提示词、
// 输入、输出文件与最终成功的提供者），供 `charis history` 列出。
package history
