// kmachat 是 KMA 学生问答服务的命令行入口。
//
// 使用方法:
//
//	kmachat chat                      # 交互式对话
//	kmachat chat --config config.yaml # 指定配置文件
//	kmachat chat --rebuild            # 启动前强制重建索引
//	kmachat reindex                   # 重建检索索引
//	kmachat usage                     # 查看/重置用户用量 (需 MongoDB)
//	kmachat health                    # 探测 LLM 服务
//	kmachat version                   # 显示版本信息
package main
