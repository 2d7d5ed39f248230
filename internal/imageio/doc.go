// Package imageio 负责命令行的文件输入输出：读取本地或远程输入图像、
// 生成输出文件名以及原子写入。
package imageio
