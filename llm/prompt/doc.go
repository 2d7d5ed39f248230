/*
包 prompt 提供提示词相关的辅助能力：通过 Provider 链改写用户提示词，
以及为多图合并生成编辑指令。
*/
package prompt
