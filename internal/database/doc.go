/*
包 database 管理 charis 的本地状态数据库（纯 Go SQLite，经 GORM 访问）。

# 概述

Open 在配置目录下创建或打开数据库文件，设置 busy_timeout 并对传入
的模型执行 AutoMigrate。history 与 credentials 两个存储共享同一个
PoolManager。

# 主要能力

  - Open / NewPoolManager：打开数据库并配置连接池（SQLite 默认单连接）。
  - Migrate：自动迁移模型。
  - WithTransaction / WithTransactionRetry：事务执行，数据库被锁时退避重试。
*/
package database
