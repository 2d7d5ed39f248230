// Package credentials 保存 API Key。读取顺序为本地数据库、然后是同名环境变量。
package credentials
